package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// LocalizedText holds the english/french/spanish variants of a label.
// English is the fallback for a missing or unknown language.
type LocalizedText struct {
	EN string `json:"en"`
	FR string `json:"fr,omitempty"`
	ES string `json:"es,omitempty"`
}

func Text(en string) LocalizedText {
	return LocalizedText{EN: en}
}

func (t LocalizedText) In(lang string) string {
	switch lang {
	case "fr":
		if t.FR != "" {
			return t.FR
		}
	case "es":
		if t.ES != "" {
			return t.ES
		}
	}
	return t.EN
}

// Stored as a JSON blob in a text column.
func (t LocalizedText) Value() (driver.Value, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *LocalizedText) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = LocalizedText{}
		return nil
	case string:
		if v == "" {
			*t = LocalizedText{}
			return nil
		}
		return json.Unmarshal([]byte(v), t)
	case []byte:
		if len(v) == 0 {
			*t = LocalizedText{}
			return nil
		}
		return json.Unmarshal(v, t)
	}
	return fmt.Errorf("cannot scan %T into LocalizedText", src)
}
