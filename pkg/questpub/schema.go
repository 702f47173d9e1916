package questpub

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldType is the declared value type of a schema field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
)

// FieldSpec declares the shape of one field.
type FieldSpec struct {
	Key      string
	Type     FieldType
	Required bool
	// Min and Max bound string length or numeric value; nil means unbounded.
	Min *int
	Max *int
	// Format is an extra validator rule, e.g. "email" or "url".
	Format string
	// Attribute marks fields that come from quest content attributes rather
	// than being assigned by the engine.
	Attribute bool
	// Sortable marks columns allowed in an order directive.
	Sortable bool
}

// Tag renders the rules a present value must satisfy as a
// go-playground/validator tag. Presence itself is checked by Schema.Validate,
// so "required" never appears. Date fields return "".
func (f FieldSpec) Tag() string {
	if f.Type == FieldDate {
		return ""
	}
	var parts []string
	if f.Format != "" {
		parts = append(parts, f.Format)
	}
	if f.Min != nil {
		parts = append(parts, fmt.Sprintf("min=%d", *f.Min))
	}
	if f.Max != nil {
		parts = append(parts, fmt.Sprintf("max=%d", *f.Max))
	}
	return strings.Join(parts, ",")
}

// Schema is an ordered list of field specs.
type Schema []FieldSpec

// Field returns the FieldSpec for key.
func (s Schema) Field(key string) (FieldSpec, bool) {
	for _, f := range s {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Keys returns every declared key in order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for _, f := range s {
		keys = append(keys, f.Key)
	}
	return keys
}

// Attributes returns the content-supplied fields.
func (s Schema) Attributes() Schema {
	var out Schema
	for _, f := range s {
		if f.Attribute {
			out = append(out, f)
		}
	}
	return out
}

// SortableColumns is the allow-list for order directives.
func (s Schema) SortableColumns() []string {
	var out []string
	for _, f := range s {
		if f.Sortable {
			out = append(out, f.Key)
		}
	}
	return out
}

// IsSortable reports whether key may appear in ORDER BY.
func (s Schema) IsSortable(key string) bool {
	f, ok := s.Field(key)
	return ok && f.Sortable
}

func bound(n int) *int { return &n }

// QuestSchema declares the persisted quest fields.
var QuestSchema = Schema{
	{Key: ColID, Type: FieldString, Required: true, Max: bound(255), Sortable: true},
	{Key: ColOwnerID, Type: FieldString, Required: true, Max: bound(255), Sortable: true},
	{Key: ColTitle, Type: FieldString, Required: true, Max: bound(255), Attribute: true, Sortable: true},
	{Key: ColSummary, Type: FieldString, Max: bound(1024), Attribute: true, Sortable: true},
	{Key: ColAuthor, Type: FieldString, Max: bound(255), Attribute: true, Sortable: true},
	{Key: ColEmail, Type: FieldString, Max: bound(255), Format: "email", Attribute: true},
	// url stays free-form: consumers expect it without an http:// prefix.
	{Key: ColURL, Type: FieldString, Max: bound(2048), Attribute: true},
	{Key: ColMinPlayers, Type: FieldNumber, Required: true, Min: bound(1), Max: bound(20), Attribute: true, Sortable: true},
	{Key: ColMaxPlayers, Type: FieldNumber, Required: true, Min: bound(1), Max: bound(20), Attribute: true, Sortable: true},
	{Key: ColMinTimeMinutes, Type: FieldNumber, Min: bound(1), Max: bound(math.MaxInt32), Attribute: true, Sortable: true},
	{Key: ColMaxTimeMinutes, Type: FieldNumber, Min: bound(1), Max: bound(math.MaxInt32), Attribute: true, Sortable: true},
	{Key: ColPublished, Type: FieldDate, Sortable: true},
	{Key: ColTombstone, Type: FieldDate},
	{Key: ColPublishedURL, Type: FieldString, Required: true, Max: bound(2048), Format: "url"},
}

// Search parameter keys.
const (
	ParamID             = "id"
	ParamOwner          = "owner"
	ParamPlayers        = "players"
	ParamPublishedAfter = "published_after"
	ParamSearch         = "search"
	ParamOrder          = "order"
	ParamLimit          = "limit"
	ParamToken          = "token"
)

// SearchSchema declares the accepted search parameters.
var SearchSchema = Schema{
	{Key: ParamID, Type: FieldString, Max: bound(255)},
	{Key: ParamOwner, Type: FieldString, Max: bound(255)},
	{Key: ParamPlayers, Type: FieldNumber, Min: bound(1), Max: bound(20)},
	{Key: ParamPublishedAfter, Type: FieldNumber, Min: bound(1)},
	{Key: ParamSearch, Type: FieldString, Max: bound(255)},
	{Key: ParamOrder, Type: FieldString, Min: bound(2), Max: bound(64)},
	{Key: ParamLimit, Type: FieldNumber, Min: bound(1)},
	{Key: ParamToken, Type: FieldNumber, Min: bound(0)},
}

var validate = validator.New()

// Validate checks values against the schema. Keys missing from values, or
// mapped to nil or "", count as absent. Keys not declared are ignored; unknown
// keys are the AttributeValidator's concern.
func (s Schema) Validate(values map[string]interface{}) *ValidationError {
	verr := &ValidationError{}
	for _, f := range s {
		v, ok := values[f.Key]
		if !ok || v == nil || v == "" {
			if f.Required {
				verr.Add(f.Key, FieldMissing, "is required")
			}
			continue
		}
		tag := f.Tag()
		if tag == "" {
			continue
		}
		if err := validate.Var(v, tag); err != nil {
			var ves validator.ValidationErrors
			if !errors.As(err, &ves) {
				verr.Add(f.Key, FieldInvalid, err.Error())
				continue
			}
			for _, fe := range ves {
				kind, msg := describe(f, fe)
				verr.Add(f.Key, kind, msg)
			}
		}
	}
	return verr
}

func describe(f FieldSpec, fe validator.FieldError) (FieldErrorKind, string) {
	unit := ""
	if f.Type == FieldString {
		unit = " characters"
	}
	switch fe.Tag() {
	case "email":
		return FieldInvalid, "must be a valid email address"
	case "url":
		return FieldInvalid, "must be a valid URI"
	case "min":
		if f.Type == FieldString {
			return FieldInvalid, fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
		}
		return FieldInvalid, fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if f.Type == FieldString {
			return FieldInvalid, fmt.Sprintf("must be at most %s%s", fe.Param(), unit)
		}
		return FieldInvalid, fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return FieldInvalid, fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// ValidateQuest validates a complete quest record before it is persisted.
func ValidateQuest(q *Quest) error {
	verr := QuestSchema.Validate(q.ColumnValues())
	verr.Merge(checkRanges(q))
	return verr.ErrOrNil()
}

// checkRanges enforces min <= max pairs when both ends are set.
func checkRanges(q *Quest) *ValidationError {
	verr := &ValidationError{}
	if q.MinPlayers > 0 && q.MaxPlayers > 0 && q.MinPlayers > q.MaxPlayers {
		verr.Add(ColMinPlayers, FieldInvalid, "must not exceed maxplayers")
	}
	if q.MinTimeMinutes != nil && q.MaxTimeMinutes != nil && *q.MinTimeMinutes > *q.MaxTimeMinutes {
		verr.Add(ColMinTimeMinutes, FieldInvalid, "must not exceed maxtimeminutes")
	}
	return verr
}
