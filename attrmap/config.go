package attrmap

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config is the mapping policy of an Engine. It is fixed at construction.
type Config struct {
	// CaseSensitive makes target field lookup match names exactly.
	CaseSensitive bool `yaml:"case_sensitive"`
	// IgnoreUnmapped skips source fields without a target field instead of
	// reporting them.
	IgnoreUnmapped bool `yaml:"ignore_unmapped"`
	// ThrowOnError returns the first failure instead of skipping the field.
	ThrowOnError bool `yaml:"throw_on_error"`
	// MapNullValues writes nil sources as zero values instead of leaving
	// the target field untouched.
	MapNullValues bool `yaml:"map_null_values"`
	// MaxDepth bounds how many levels of nested structs are mapped.
	MaxDepth int `yaml:"max_depth"`
}

const DefaultMaxDepth = 10

func DefaultConfig() Config {
	return Config{
		CaseSensitive:  false,
		IgnoreUnmapped: true,
		ThrowOnError:   true,
		MapNullValues:  false,
		MaxDepth:       DefaultMaxDepth,
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxDepth, validation.Required, validation.Min(1), validation.Max(100)),
	)
}
