package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Type defines the contract for value validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "[number]").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

type stringType struct{}

func (stringType) Name() string { return "string" }

func (stringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

type numberType struct{}

func (numberType) Name() string { return "number" }

func (numberType) Validate(value any) error {
	switch value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return nil
	default:
		return fmt.Errorf("expected number, got %T", value)
	}
}

type boolType struct{}

func (boolType) Name() string { return "bool" }

func (boolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

type bytesType struct{}

func (bytesType) Name() string { return "bytes" }

func (bytesType) Validate(value any) error {
	if _, ok := value.([]byte); !ok {
		return fmt.Errorf("expected bytes, got %T", value)
	}
	return nil
}

type listType struct {
	elem Type
}

func (t listType) Name() string {
	return fmt.Sprintf("[%s]", t.elem.Name())
}

func (t listType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected list, got %T", value)
	}
	if _, isBytes := value.([]byte); isBytes {
		return fmt.Errorf("expected list, got bytes")
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

type recordType struct {
	fields Schema
}

func (t recordType) Name() string { return "record" }

func (t recordType) Validate(value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("expected record, got %T", value)
	}
	for key, v := range m {
		if err := Storable().Validate(v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return ValidatePresent(t.fields, m)
}

type nullable struct {
	inner Type
}

func (t nullable) Name() string { return t.inner.Name() + "?" }

func (t nullable) Validate(value any) error {
	if value == nil {
		return nil
	}
	return t.inner.Validate(value)
}

type storableType struct{}

func (storableType) Name() string { return "any" }

// Validate accepts JSON-like data and byte slices, recursively.
func (storableType) Validate(value any) error {
	switch v := value.(type) {
	case nil, string, bool, []byte, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case map[string]any:
		for key, inner := range v {
			if err := (storableType{}).Validate(inner); err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
		}
		return nil
	case []any:
		for i, inner := range v {
			if err := (storableType{}).Validate(inner); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Errorf("value of type %T is not serializable", value)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return (storableType{}).Validate(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := (storableType{}).Validate(rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("map key type %s is not serializable", rv.Type().Key())
		}
		iter := rv.MapRange()
		for iter.Next() {
			if err := (storableType{}).Validate(iter.Value().Interface()); err != nil {
				return fmt.Errorf("field %q: %w", iter.Key().String(), err)
			}
		}
		return nil
	case reflect.Struct:
		if _, err := json.Marshal(value); err != nil {
			return fmt.Errorf("value of type %T is not serializable: %w", value, err)
		}
		return nil
	default:
		return nil
	}
}

type customType struct {
	name     string
	validate func(any) error
}

func (t customType) Name() string { return t.name }

func (t customType) Validate(value any) error {
	return t.validate(value)
}

// String creates a string type validator.
func String() Type { return stringType{} }

// Number creates a numeric type validator accepting any Go number or json.Number.
func Number() Type { return numberType{} }

// Bool creates a boolean type validator.
func Bool() Type { return boolType{} }

// Bytes creates a validator for raw binary payloads.
func Bytes() Type { return bytesType{} }

// List creates a list type validator for elements of the given type.
func List(elem Type) Type { return listType{elem: elem} }

// Record creates a validator for string-keyed records. Fields listed in the
// schema are checked when present; other fields must be storable.
func Record(fields Schema) Type { return recordType{fields: fields} }

// Nullable wraps a type so that nil is accepted.
func Nullable(inner Type) Type { return nullable{inner: inner} }

// Storable accepts any value that can be persisted and sent over the wire.
func Storable() Type { return storableType{} }

// Custom creates a custom type validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return customType{name: name, validate: validate}
}
