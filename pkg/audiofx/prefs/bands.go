package prefs

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

const bandSeparator = ";"

// BandsToFloats parses a ";" separated list of levels
func BandsToFloats(bands string) ([]float32, error) {
	if strings.TrimSpace(bands) == "" {
		return nil, nil
	}

	parts := strings.Split(bands, bandSeparator)
	levels := make([]float32, len(parts))

	for idx, part := range parts {
		level, err := cast.ToFloat32E(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("parse band %d (%q): %w", idx, part, err)
		}
		levels[idx] = level
	}

	return levels, nil
}

// BandsToInts parses a ";" separated list of integer levels
func BandsToInts(bands string) ([]int, error) {
	if strings.TrimSpace(bands) == "" {
		return nil, nil
	}

	parts := strings.Split(bands, bandSeparator)
	levels := make([]int, len(parts))

	for idx, part := range parts {
		level, err := ParseDecimal(part)
		if err != nil {
			return nil, fmt.Errorf("parse band %d (%q): %w", idx, part, err)
		}
		levels[idx] = level
	}

	return levels, nil
}

func FloatsToBands(levels []float32) string {
	parts := make([]string, len(levels))
	for idx, level := range levels {
		parts[idx] = cast.ToString(level)
	}
	return strings.Join(parts, bandSeparator)
}

func IntsToBands(levels []int) string {
	parts := make([]string, len(levels))
	for idx, level := range levels {
		parts[idx] = cast.ToString(level)
	}
	return strings.Join(parts, bandSeparator)
}

// ZeroedBands returns a flat band string for n bands
func ZeroedBands(n int) string {
	return IntsToBands(make([]int, n))
}

// MillibelsToDecibels converts backend preset levels to the unit the
// equalizer setters take
func MillibelsToDecibels(levels []int) []float32 {
	out := make([]float32, len(levels))
	for idx, level := range levels {
		out[idx] = float32(level) / 100
	}
	return out
}

// ParseDecimal parses a base 10 integer. Leading zeros are ignored, so a
// hand-edited "040" is 40 rather than an octal literal.
func ParseDecimal(raw string) (int, error) {
	raw = strings.TrimSpace(raw)

	sign := ""
	if strings.HasPrefix(raw, "-") || strings.HasPrefix(raw, "+") {
		sign, raw = raw[:1], raw[1:]
	}

	digits := strings.TrimLeft(raw, "0")
	if digits == "" && raw != "" {
		digits = "0"
	}

	return cast.ToIntE(sign + digits)
}
