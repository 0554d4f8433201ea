package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarTypes(t *testing.T) {
	tests := []struct {
		typ     Type
		value   any
		wantErr bool
	}{
		{String(), "hello", false},
		{String(), 42, true},
		{Number(), 42, false},
		{Number(), 3.14, false},
		{Number(), "3", true},
		{Bool(), true, false},
		{Bool(), "true", true},
		{Bytes(), []byte("x"), false},
		{Bytes(), "x", true},
		{Nullable(String()), nil, false},
		{Nullable(String()), 1, true},
	}

	for _, tt := range tests {
		err := tt.typ.Validate(tt.value)
		assert.Equal(t, tt.wantErr, err != nil, "%s.Validate(%v)", tt.typ.Name(), tt.value)
	}
}

func TestListType(t *testing.T) {
	typ := List(String())
	assert.Equal(t, "[string]", typ.Name())
	assert.NoError(t, typ.Validate([]any{"a", "b"}))
	assert.NoError(t, typ.Validate([]string{"a"}))
	assert.Error(t, typ.Validate([]any{"a", 1}))
	assert.Error(t, typ.Validate([]byte("a")))
}

func TestStorable(t *testing.T) {
	assert.NoError(t, Storable().Validate(map[string]any{
		"nested": []any{1, "two", map[string]any{"three": 3.0}},
		"blob":   []byte{1, 2},
	}))

	err := Storable().Validate(map[string]any{"fn": func() {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not serializable")

	assert.Error(t, Storable().Validate(make(chan int)))
}

func TestRecordType(t *testing.T) {
	typ := Record(Schema{"current": Number(), "total": Number()})
	assert.NoError(t, typ.Validate(map[string]any{"current": 1, "total": 10, "label": "x"}))
	assert.Error(t, typ.Validate(map[string]any{"current": "1"}))
	assert.Error(t, typ.Validate("nope"))
}

func TestValidate_Aggregates(t *testing.T) {
	s := Schema{"a": String(), "b": Number()}
	err := Validate(s, map[string]any{"b": "x"})
	require.Error(t, err)

	errs := ValidationErrors(err)
	require.Len(t, errs, 2)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "a", ve.Key)
	assert.Equal(t, "required", ve.Reason)
}
