// Package form assembles a registration form from a meeting's schema at
// runtime: one field per descriptor, static validation per kind, then the
// conditional rule pass, and a save path that routes primary slugs to
// participant columns and everything else to custom_field_value rows.
package form

import (
	"github.com/mbolis/quick-register/field"
	"github.com/mbolis/quick-register/filestore"
	"github.com/mbolis/quick-register/rules"
	"github.com/mbolis/quick-register/schema"
)

// Error codes: "required" is a field's own static flag, "conditional_required"
// a fired rule's action, so the UI can tell the two apart.
const (
	CodeRequired            = "required"
	CodeConditionalRequired = "conditional_required"
	CodeInvalid             = "invalid"
)

type Error struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

type Errors []Error

func (errs Errors) On(slug string) []Error {
	var out []Error
	for _, e := range errs {
		if e.Field == slug {
			out = append(out, e)
		}
	}
	return out
}

type Form struct {
	fields []schema.Descriptor
	bySlug map[string]*schema.Descriptor
	rules  rules.Set
	files  filestore.Store

	values map[string]field.Value
	errs   Errors
}

// New builds a form over the given schema. The rule set may be nil when
// no conditional validation applies (e.g. admin edits of single fields).
func New(fields []schema.Descriptor, ruleSet rules.Set, files filestore.Store) *Form {
	return &Form{
		fields: fields,
		bySlug: schema.BySlug(fields),
		rules:  ruleSet,
		files:  files,
		values: map[string]field.Value{},
	}
}

// Bind parses raw submitted values into typed field values. Slugs not in
// the schema are ignored; malformed values become field-level errors so
// one bad input does not mask the rest of the form.
func (f *Form) Bind(raw map[string]any, uploads map[string]*field.Upload) {
	for i := range f.fields {
		d := &f.fields[i]

		if up, ok := uploads[d.Slug]; ok && d.Type.IsFile() {
			f.values[d.Slug] = field.Value{Kind: d.Type, File: up}
			continue
		}

		rawValue, ok := raw[d.Slug]
		if !ok {
			continue
		}
		v, err := field.Of(d.Type).Parse(rawValue, &d.CustomField)
		if err != nil {
			f.errs = append(f.errs, Error{Field: d.Slug, Code: CodeInvalid, Message: err.Error()})
			continue
		}
		f.values[d.Slug] = v
	}
}

// Bound reports whether a value was submitted for slug.
func (f *Form) Bound(slug string) bool {
	_, ok := f.values[slug]
	return ok
}

// Value returns the parsed value of slug; the zero Value when unbound.
func (f *Form) Value(slug string) field.Value {
	return f.values[slug]
}

// Set overrides a field value programmatically (admin edit paths).
func (f *Form) Set(slug string, v field.Value) {
	f.values[slug] = v
}

// Normalized reduces the current value of slug to the representation rule
// conditions are matched against.
func (f *Form) Normalized(slug string) []string {
	d, ok := f.bySlug[slug]
	if !ok {
		return nil
	}
	v, ok := f.values[slug]
	if !ok {
		return nil
	}
	return field.Of(d.Type).Normalize(v, &d.CustomField)
}

// Validate runs the static pass, then (only if it succeeds) the rule
// engine. Returns true when the form is fully valid.
func (f *Form) Validate() bool {
	for i := range f.fields {
		d := &f.fields[i]
		v := f.values[d.Slug]
		if v.Kind == "" {
			v = field.Value{Kind: d.Type}
		}

		if d.Required && v.Empty() {
			f.errs = append(f.errs, Error{
				Field:   d.Slug,
				Code:    CodeRequired,
				Message: "this field is required",
			})
			continue
		}
		if v.Empty() {
			continue
		}
		if err := field.Of(d.Type).Validate(v, &d.CustomField); err != nil {
			f.errs = append(f.errs, Error{Field: d.Slug, Code: CodeInvalid, Message: err.Error()})
		}
	}

	// rules only run against statically valid data
	if len(f.errs) > 0 {
		return false
	}

	for _, req := range f.rules.Evaluate(f.Normalized) {
		d, ok := f.bySlug[req.Slug]
		if !ok {
			continue
		}
		v, bound := f.values[req.Slug]
		if !bound {
			v = field.Value{Kind: d.Type}
		}
		if v.Empty() {
			f.errs = append(f.errs, Error{
				Field:   req.Slug,
				Code:    CodeConditionalRequired,
				Message: "this field is required by rule " + req.RuleName,
				Rule:    req.RuleName,
			})
		}
	}
	return len(f.errs) == 0
}

func (f *Form) Errors() Errors {
	return f.errs
}
