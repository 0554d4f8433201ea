package schema

// Schema is a map of field names to their expected types.
type Schema map[string]Type

// Validate checks that every field of the schema is present in data and
// conforms to its type. All failures are reported in one AggregateError.
func Validate(schema Schema, data map[string]any) error {
	var errs []error
	for _, key := range sortedKeys(schema) {
		value, exists := data[key]
		if !exists {
			errs = append(errs, &ValidationError{Key: key, Reason: "required"})
			continue
		}
		if err := schema[key].Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// ValidatePresent checks only the fields present in data. Fields absent from
// the schema are reported as unknown.
func ValidatePresent(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	var errs []error
	for _, key := range sortedKeys(data) {
		typ, ok := schema[key]
		if !ok {
			continue
		}
		if err := typ.Validate(data[key]); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: data[key]})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
