package prefs

import (
	"github.com/spf13/cast"
)

// marks "no value" when probing for a key
const absent = "\x00"

// Bundle is a typed view of one bucket
type Bundle struct {
	store Store
	name  string
}

// NewBundle returns the bundle for the given bucket name
func NewBundle(store Store, name string) *Bundle {
	return &Bundle{store: store, name: name}
}

func (b *Bundle) Name() string {
	return b.name
}

// Exists reports whether anything was ever written to this bucket
func (b *Bundle) Exists() bool {
	return b.store.HasBucket(b.name)
}

func (b *Bundle) Has(key string) bool {
	return b.store.GetString(b.name, key, absent) != absent
}

func (b *Bundle) GetString(key, def string) string {
	return b.store.GetString(b.name, key, def)
}

// GetBool returns def when the key is missing or not a valid boolean
func (b *Bundle) GetBool(key string, def bool) bool {
	raw := b.store.GetString(b.name, key, absent)
	if raw == absent {
		return def
	}

	value, err := cast.ToBoolE(raw)
	if err != nil {
		return def
	}
	return value
}

// GetInt returns def when the key is missing or not a valid integer
func (b *Bundle) GetInt(key string, def int) int {
	raw := b.store.GetString(b.name, key, absent)
	if raw == absent {
		return def
	}

	value, err := ParseDecimal(raw)
	if err != nil {
		return def
	}
	return value
}

func (b *Bundle) PutString(key, value string) {
	b.store.PutString(b.name, key, value)
}

func (b *Bundle) PutBool(key string, value bool) {
	b.store.PutString(b.name, key, cast.ToString(value))
}

func (b *Bundle) PutInt(key string, value int) {
	b.store.PutString(b.name, key, cast.ToString(value))
}

func (b *Bundle) Commit() error {
	return b.store.Commit()
}
