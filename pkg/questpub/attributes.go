package questpub

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// AttributeValidator extracts typed values from an untrusted string-keyed
// attribute map. Per-field problems are accumulated rather than returned, and
// every key asked for is remembered so ConfirmNoExtraKeys can report the rest.
//
// An empty value counts as absent.
type AttributeValidator struct {
	attrs     map[string]string
	queried   map[string]bool
	errs      ValidationError
	confirmed bool
}

// NewAttributeValidator wraps attrs. The map is not modified.
func NewAttributeValidator(attrs map[string]string) *AttributeValidator {
	return &AttributeValidator{
		attrs:   attrs,
		queried: make(map[string]bool),
	}
}

func (v *AttributeValidator) extract(key string, required bool) (string, bool) {
	v.queried[key] = true
	raw, ok := v.attrs[key]
	if !ok || raw == "" {
		if required {
			v.errs.Add(key, FieldMissing, fmt.Sprintf("missing: %q", key))
		}
		return "", false
	}
	return raw, true
}

// ExtractString returns the value for key and whether it was present.
func (v *AttributeValidator) ExtractString(key string, required bool) (string, bool) {
	return v.extract(key, required)
}

// ExtractNumber returns the value for key parsed as a finite decimal,
// truncated to an integer. A malformed value records a wrong_type error and
// yields the sentinel 0 with present == true, so callers can tell it apart
// from an absent field. Values beyond the int range saturate, so a later bounds
// check reports them against the real limit.
func (v *AttributeValidator) ExtractNumber(key string, required bool) (int, bool) {
	raw, ok := v.extract(key, required)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		v.errs.Add(key, FieldWrongType, fmt.Sprintf("%s should be a number, but is %q", key, raw))
		return 0, true
	}
	switch {
	case f >= float64(math.MaxInt):
		return math.MaxInt, true
	case f <= float64(math.MinInt):
		return math.MinInt, true
	}
	return int(f), true
}

// ConfirmNoExtraKeys reports one unknown error per input key that was never
// extracted. Call it once, after every expected field; repeat calls are no-ops.
func (v *AttributeValidator) ConfirmNoExtraKeys() {
	if v.confirmed {
		return
	}
	v.confirmed = true

	var unknown []string
	for k := range v.attrs {
		if !v.queried[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		v.errs.Add(k, FieldUnknown, fmt.Sprintf("unknown: %q", k))
	}
}

// Errors returns the field errors collected so far.
func (v *AttributeValidator) Errors() []FieldError {
	return append([]FieldError(nil), v.errs.Fields...)
}

// Err returns the aggregate *ValidationError, or nil when clean.
func (v *AttributeValidator) Err() error {
	if len(v.errs.Fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.Errors()}
}

func (v *AttributeValidator) stringField(key string) string {
	s, _ := v.ExtractString(key, requiredIn(QuestSchema, key))
	return s
}

func (v *AttributeValidator) numberField(key string) int {
	n, _ := v.ExtractNumber(key, requiredIn(QuestSchema, key))
	return n
}

func (v *AttributeValidator) optionalNumberField(key string) *int {
	n, ok := v.ExtractNumber(key, requiredIn(QuestSchema, key))
	if !ok {
		return nil
	}
	return &n
}

func requiredIn(s Schema, key string) bool {
	f, ok := s.Field(key)
	return ok && f.Required
}

// ExtractQuestAttributes turns content attributes into quest metadata. The
// returned quest is populated even when err is a *ValidationError.
func ExtractQuestAttributes(attrs map[string]string) (*Quest, error) {
	v := NewAttributeValidator(attrs)
	q := &Quest{
		Title:          v.stringField(ColTitle),
		Summary:        v.stringField(ColSummary),
		Author:         v.stringField(ColAuthor),
		Email:          v.stringField(ColEmail),
		URL:            v.stringField(ColURL),
		MinPlayers:     v.numberField(ColMinPlayers),
		MaxPlayers:     v.numberField(ColMaxPlayers),
		MinTimeMinutes: v.optionalNumberField(ColMinTimeMinutes),
		MaxTimeMinutes: v.optionalNumberField(ColMaxTimeMinutes),
	}
	v.ConfirmNoExtraKeys()
	return q, v.Err()
}

// ValidateAttributes runs extraction plus the schema's bounds and range
// checks on content attributes alone, without engine-assigned fields.
func ValidateAttributes(attrs map[string]string) (*Quest, error) {
	q, err := ExtractQuestAttributes(attrs)
	verr := &ValidationError{}
	if ve, ok := err.(*ValidationError); ok {
		verr.Merge(ve)
	}
	values := q.ColumnValues()
	for _, f := range QuestSchema.Attributes() {
		if len(verr.FieldErrors(f.Key)) > 0 {
			continue
		}
		verr.Merge(Schema{f}.Validate(values))
	}
	verr.Merge(checkRanges(q))
	return q, verr.ErrOrNil()
}
