package effects

import "strings"

// ChangeFlags selects the effect categories an update must touch
type ChangeFlags int

const (
	EqChanged          ChangeFlags = 0x1
	BassBoostChanged   ChangeFlags = 0x2
	VirtualizerChanged ChangeFlags = 0x4
	TrebleBoostChanged ChangeFlags = 0x8
	VolumeBoostChanged ChangeFlags = 0x10
	ReverbChanged      ChangeFlags = 0x20

	AllChanged ChangeFlags = 0xFF
)

var flagNames = []struct {
	flag ChangeFlags
	name string
}{
	{EqChanged, "eq"},
	{BassBoostChanged, "bass"},
	{ReverbChanged, "reverb"},
	{VirtualizerChanged, "virtualizer"},
	{TrebleBoostChanged, "treble"},
	{VolumeBoostChanged, "volume"},
}

// Has reports whether any bit of other is set in f
func (f ChangeFlags) Has(other ChangeFlags) bool {
	return f&other != 0
}

func (f ChangeFlags) String() string {
	if f&AllChanged == AllChanged {
		return "all"
	}

	names := []string{}
	for _, entry := range flagNames {
		if f.Has(entry.flag) {
			names = append(names, entry.name)
		}
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}
