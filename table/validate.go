package table

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Names end up in file names and storage keys, so path separators and NUL
// bytes are rejected.
var namePattern = regexp.MustCompile(`^[^/\\\x00]+$`)

// ValidateName checks a table name.
func ValidateName(name string) error {
	return validation.Validate(name,
		validation.Required,
		validation.Length(1, 200),
		validation.Match(namePattern).Error("must not contain path separators or NUL"),
		validation.NotIn(".", "..").Error("must not be a relative path element"),
	)
}

func (c Column) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Order, validation.Min(0)),
	)
}

// ValidateColumns checks each column and rejects names that collide
// case-insensitively.
func ValidateColumns(columns []Column) error {
	seen := make(map[string]int, len(columns))
	for i, c := range columns {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
		folded := FoldKey(c.Name)
		if j, dup := seen[folded]; dup {
			return fmt.Errorf("column %d: name %q duplicates column %d", i, c.Name, j)
		}
		seen[folded] = i
	}
	return nil
}
