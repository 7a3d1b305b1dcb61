package model

// FieldType enumerates the kinds a custom field can take. The per-kind
// behavior (parsing, normalization, validation) lives in the field package.
type FieldType string

const (
	TypeText          FieldType = "text"
	TypeTextArea      FieldType = "text-area"
	TypeEmail         FieldType = "email"
	TypeCheckbox      FieldType = "checkbox"
	TypeSelect        FieldType = "select"
	TypeMultiCheckbox FieldType = "multi-checkbox"
	TypeRadio         FieldType = "radio"
	TypeCountry       FieldType = "country"
	TypeCategory      FieldType = "category"
	TypeDate          FieldType = "date"
	TypeLanguage      FieldType = "language"
	TypeImage         FieldType = "image"
	TypeDocument      FieldType = "document"
	TypeEvent         FieldType = "event"
)

var fieldTypes = map[FieldType]bool{
	TypeText:          true,
	TypeTextArea:      true,
	TypeEmail:         true,
	TypeCheckbox:      true,
	TypeSelect:        true,
	TypeMultiCheckbox: true,
	TypeRadio:         true,
	TypeCountry:       true,
	TypeCategory:      true,
	TypeDate:          true,
	TypeLanguage:      true,
	TypeImage:         true,
	TypeDocument:      true,
	TypeEvent:         true,
}

func (t FieldType) Valid() bool {
	return fieldTypes[t]
}

// HasChoices reports whether the kind is backed by CustomFieldChoice rows.
func (t FieldType) HasChoices() bool {
	return t == TypeSelect || t == TypeMultiCheckbox || t == TypeRadio
}

// IsFile reports whether values are stored file keys rather than text.
func (t FieldType) IsFile() bool {
	return t == TypeImage || t == TypeDocument
}
