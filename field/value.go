package field

import (
	"io"

	"github.com/mbolis/quick-register/model"
)

// Value is the parsed, kind-tagged value of one form field.
type Value struct {
	Kind model.FieldType
	Str  string   // scalar kinds (text, email, select, country, date, ...)
	Set  []string // multi-checkbox choice ids
	Bool bool     // checkbox
	File *Upload  // image/document upload pending storage
}

// Upload is a file received with the form, not yet persisted.
type Upload struct {
	Filename string
	Data     io.Reader
}

// Empty reports whether the value counts as "not provided" for required
// checks, both static and rule-triggered.
func (v Value) Empty() bool {
	switch v.Kind {
	case model.TypeCheckbox:
		return !v.Bool
	case model.TypeMultiCheckbox:
		return len(v.Set) == 0
	case model.TypeImage, model.TypeDocument:
		return v.File == nil && v.Str == ""
	default:
		return v.Str == ""
	}
}
