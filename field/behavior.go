package field

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mbolis/quick-register/model"
)

var validate = validator.New()

// Behavior is the per-kind variant of the field dispatch table: how a raw
// submitted value is parsed, validated against the field definition, and
// reduced to the comparable form the rule engine matches on.
type Behavior struct {
	Parse     func(raw any, f *model.CustomField) (Value, error)
	Validate  func(v Value, f *model.CustomField) error
	Normalize func(v Value, f *model.CustomField) []string
}

// Of returns the behavior for a field kind. Unknown kinds fall back to
// plain text so a stale field row cannot take the whole form down.
func Of(t model.FieldType) Behavior {
	if b, ok := behaviors[t]; ok {
		return b
	}
	return behaviors[model.TypeText]
}

var behaviors map[model.FieldType]Behavior

func init() {
	behaviors = map[model.FieldType]Behavior{
		model.TypeText:          {parseString, validateLength, normalizeStr},
		model.TypeTextArea:      {parseString, validateLength, normalizeStr},
		model.TypeEvent:         {parseString, validateLength, normalizeStr},
		model.TypeLanguage:      {parseString, validateLanguage, normalizeStr},
		model.TypeEmail:         {parseString, validateEmail, normalizeStr},
		model.TypeDate:          {parseString, validateDate, normalizeStr},
		model.TypeCheckbox:      {parseBool, validateNothing, normalizeBool},
		model.TypeSelect:        {parseChoice, validateChoice, normalizeStr},
		model.TypeRadio:         {parseChoice, validateChoice, normalizeStr},
		model.TypeCategory:      {parseChoice, validateChoice, normalizeStr},
		model.TypeMultiCheckbox: {parseMulti, validateMulti, normalizeSet},
		model.TypeCountry:       {parseString, validateCountry, normalizeCountry},
		model.TypeImage:         {parseFileKey, validateImage, normalizeStr},
		model.TypeDocument:      {parseFileKey, validateDocument, normalizeStr},
	}
}

func asString(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		// JSON numbers; ids arrive this way
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", fmt.Errorf("unexpected value type %T", raw)
}

func parseString(raw any, f *model.CustomField) (Value, error) {
	s, err := asString(raw)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: f.Type, Str: s}, nil
}

func parseBool(raw any, f *model.CustomField) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Value{Kind: f.Type}, nil
	case bool:
		return Value{Kind: f.Type, Bool: v}, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "false", "0", "off", "no":
			return Value{Kind: f.Type}, nil
		case "true", "1", "on", "yes":
			return Value{Kind: f.Type, Bool: true}, nil
		}
	}
	return Value{}, fmt.Errorf("not a boolean: %v", raw)
}

func parseChoice(raw any, f *model.CustomField) (Value, error) {
	return parseString(raw, f)
}

func parseMulti(raw any, f *model.CustomField) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Value{Kind: f.Type}, nil
	case []any:
		set := make([]string, 0, len(v))
		for _, item := range v {
			s, err := asString(item)
			if err != nil {
				return Value{}, err
			}
			if s != "" {
				set = append(set, s)
			}
		}
		return Value{Kind: f.Type, Set: set}, nil
	case []string:
		return Value{Kind: f.Type, Set: v}, nil
	case string:
		// urlencoded forms post comma-joined selections
		if strings.TrimSpace(v) == "" {
			return Value{Kind: f.Type}, nil
		}
		var set []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				set = append(set, s)
			}
		}
		return Value{Kind: f.Type, Set: set}, nil
	}
	return Value{}, fmt.Errorf("not a selection list: %v", raw)
}

// parseFileKey covers the no-upload case: a string value is the key of an
// already stored file being kept as is. Actual uploads are bound by the
// form from the multipart payload.
func parseFileKey(raw any, f *model.CustomField) (Value, error) {
	return parseString(raw, f)
}

func validateNothing(v Value, f *model.CustomField) error {
	return nil
}

func validateLength(v Value, f *model.CustomField) error {
	if f.MaxLength > 0 && len(v.Str) > f.MaxLength {
		return fmt.Errorf("longer than %d characters", f.MaxLength)
	}
	return nil
}

func validateEmail(v Value, f *model.CustomField) error {
	if v.Str == "" {
		return nil
	}
	if err := validate.Var(v.Str, "email"); err != nil {
		return fmt.Errorf("not a valid email address")
	}
	return validateLength(v, f)
}

func validateDate(v Value, f *model.CustomField) error {
	if v.Str == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", v.Str); err != nil {
		return fmt.Errorf("not a valid date (want YYYY-MM-DD)")
	}
	return nil
}

func validateLanguage(v Value, f *model.CustomField) error {
	switch v.Str {
	case "", "en", "fr", "es":
		return nil
	}
	return fmt.Errorf("unknown language %q", v.Str)
}

func validateChoice(v Value, f *model.CustomField) error {
	if v.Str == "" {
		return nil
	}
	for i := range f.Choices {
		if strconv.Itoa(f.Choices[i].ID) == v.Str {
			return nil
		}
	}
	return fmt.Errorf("not one of the allowed choices")
}

func validateMulti(v Value, f *model.CustomField) error {
	for _, sel := range v.Set {
		ok := false
		for i := range f.Choices {
			if strconv.Itoa(f.Choices[i].ID) == sel {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%q is not one of the allowed choices", sel)
		}
	}
	return nil
}

func validateCountry(v Value, f *model.CustomField) error {
	if v.Str == "" {
		return nil
	}
	if CountryCode(v.Str) == "" {
		return fmt.Errorf("unknown country %q", v.Str)
	}
	return nil
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}
var documentExts = map[string]bool{".pdf": true, ".doc": true, ".docx": true, ".odt": true, ".txt": true}

func validateImage(v Value, f *model.CustomField) error {
	return validateFileExt(v, imageExts, "not an accepted image type")
}

func validateDocument(v Value, f *model.CustomField) error {
	return validateFileExt(v, documentExts, "not an accepted document type")
}

func validateFileExt(v Value, allowed map[string]bool, msg string) error {
	if v.File == nil {
		return nil
	}
	ext := strings.ToLower(path.Ext(v.File.Filename))
	if !allowed[ext] {
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func normalizeStr(v Value, f *model.CustomField) []string {
	if v.Str == "" {
		return nil
	}
	return []string{v.Str}
}

func normalizeBool(v Value, f *model.CustomField) []string {
	return []string{strconv.FormatBool(v.Bool)}
}

func normalizeSet(v Value, f *model.CustomField) []string {
	return v.Set
}

// Countries are matched by ISO code: a submitted display name is reduced
// to its code before rule conditions are checked.
func normalizeCountry(v Value, f *model.CustomField) []string {
	if v.Str == "" {
		return nil
	}
	if code := CountryCode(v.Str); code != "" {
		return []string{code}
	}
	return []string{strings.ToUpper(v.Str)}
}
