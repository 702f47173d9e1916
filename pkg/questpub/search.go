package questpub

// ParseSearchRequest validates raw search parameters (typically URL query
// values) against SearchSchema. Unknown parameters are rejected.
func ParseSearchRequest(attrs map[string]string) (SearchRequest, error) {
	v := NewAttributeValidator(attrs)
	values := make(map[string]interface{})

	str := func(key string) string {
		s, ok := v.ExtractString(key, false)
		if ok {
			values[key] = s
		}
		return s
	}
	num := func(key string) int {
		n, ok := v.ExtractNumber(key, false)
		if ok {
			values[key] = n
		}
		return n
	}

	req := SearchRequest{
		ID:             str(ParamID),
		Owner:          str(ParamOwner),
		Players:        num(ParamPlayers),
		Search:         str(ParamSearch),
		PublishedAfter: num(ParamPublishedAfter),
		Order:          str(ParamOrder),
		Limit:          num(ParamLimit),
		Token:          num(ParamToken),
	}
	v.ConfirmNoExtraKeys()

	verr := &ValidationError{Fields: v.Errors()}
	for _, f := range SearchSchema {
		if len(verr.FieldErrors(f.Key)) > 0 {
			continue
		}
		verr.Merge(Schema{f}.Validate(values))
	}
	if req.Order != "" && len(verr.FieldErrors(ParamOrder)) == 0 {
		if _, err := ParseOrder(req.Order); err != nil {
			verr.Merge(err.(*ValidationError))
		}
	}
	if err := verr.ErrOrNil(); err != nil {
		return SearchRequest{}, err
	}
	return req, nil
}
