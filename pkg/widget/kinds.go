package widget

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/schema"
)

// Built-in kind names.
const (
	KindText         = "text"
	KindTextarea     = "textarea"
	KindNumber       = "number"
	KindToggle       = "toggle"
	KindSelect       = "select"
	KindFile         = "file"
	KindProgress     = "progress"
	KindSortableList = "sortable-list"
	KindLabel        = "label"
	KindButton       = "button"
	KindJSON         = "json"
)

func newDefaultCatalog() *Catalog {
	c := NewCatalog()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(c.Register(KindText, 1, newTextKind(KindText)))
	must(c.Register(KindTextarea, 1, newTextKind(KindTextarea)))
	must(c.Register(KindLabel, 1, newTextKind(KindLabel)))
	must(c.Register(KindNumber, 1, newNumberKind))
	must(c.Register(KindToggle, 1, newToggleKind))
	must(c.Register(KindSelect, 1, newSelectKind))
	must(c.Register(KindFile, 1, newFileKind))
	must(c.Register(KindProgress, 1, newProgressKind))
	must(c.Register(KindSortableList, 1, newSortableListKind))
	must(c.Register(KindButton, 1, newButtonKind))
	must(c.Register(KindJSON, 1, newJSONKind))
	return c
}

// text, textarea, label

type textKind struct {
	name string
	cfg  textConfig
}

func newTextKind(name string) Factory {
	return func(config map[string]any) (Kind, error) {
		k := &textKind{name: name}
		if err := decodeConfig(config, &k.cfg); err != nil {
			return nil, err
		}
		return k, nil
	}
}

func (k *textKind) Ref() string { return k.name + "@1" }
func (k *textKind) Empty() any  { return "" }

func (k *textKind) Normalize(value any) (any, error) {
	var s string
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		s = v
	case []byte:
		if !utf8.Valid(v) {
			return nil, fmt.Errorf("%s: invalid UTF-8", k.name)
		}
		s = string(v)
	case bool, json.Number, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		s = fmt.Sprint(v)
	case float32:
		s = strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return nil, fmt.Errorf("%s: expected string, got %T", k.name, value)
	}
	if k.cfg.MaxLength > 0 && utf8.RuneCountInString(s) > k.cfg.MaxLength {
		return nil, fmt.Errorf("%s: longer than %d characters", k.name, k.cfg.MaxLength)
	}
	return s, nil
}

func (k *textKind) Equal(a, b any) bool { return sameValue(a, b) }

// number

type numberKind struct {
	cfg numberConfig
}

func newNumberKind(config map[string]any) (Kind, error) {
	k := &numberKind{}
	if err := decodeConfig(config, &k.cfg); err != nil {
		return nil, err
	}
	if k.cfg.Min != nil && k.cfg.Max != nil && *k.cfg.Min > *k.cfg.Max {
		return nil, fmt.Errorf("number: min %v greater than max %v", *k.cfg.Min, *k.cfg.Max)
	}
	return k, nil
}

func (k *numberKind) Ref() string { return KindNumber + "@1" }
func (k *numberKind) Empty() any  { return float64(0) }

// Normalize converts any numeric value to float64 clamped to [min, max].
func (k *numberKind) Normalize(value any) (any, error) {
	f, err := toFloat(value)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("number: %v is not finite", f)
	}
	if k.cfg.Min != nil && f < *k.cfg.Min {
		f = *k.cfg.Min
	}
	if k.cfg.Max != nil && f > *k.cfg.Max {
		f = *k.cfg.Max
	}
	return f, nil
}

func (k *numberKind) Equal(a, b any) bool { return sameValue(a, b) }

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("number: %q is not a number", v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("number: expected number, got %T", value)
}

// toggle

type toggleKind struct{}

func newToggleKind(map[string]any) (Kind, error) { return toggleKind{}, nil }

func (toggleKind) Ref() string { return KindToggle + "@1" }
func (toggleKind) Empty() any  { return false }

func (toggleKind) Normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("toggle: %q is not a boolean", v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("toggle: expected bool, got %T", value)
}

func (toggleKind) Equal(a, b any) bool { return sameValue(a, b) }

// select

type selectKind struct {
	cfg selectConfig
}

func newSelectKind(config map[string]any) (Kind, error) {
	k := &selectKind{}
	if err := decodeConfig(config, &k.cfg); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *selectKind) Ref() string { return KindSelect + "@1" }

func (k *selectKind) Empty() any {
	if k.cfg.Multiple {
		return []string{}
	}
	return ""
}

func (k *selectKind) Normalize(value any) (any, error) {
	if value == nil {
		return k.Empty(), nil
	}
	if !k.cfg.Multiple {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("select: expected string, got %T", value)
		}
		if err := k.allowed(s); err != nil {
			return nil, err
		}
		return s, nil
	}

	var out []string
	switch v := value.(type) {
	case []string:
		out = slices.Clone(v)
	case []any:
		out = make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("select: expected string option, got %T", item)
			}
			out = append(out, s)
		}
	default:
		return nil, fmt.Errorf("select: expected list, got %T", value)
	}
	for _, s := range out {
		if err := k.allowed(s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (k *selectKind) allowed(s string) error {
	if s == "" || len(k.cfg.Options) == 0 || slices.Contains(k.cfg.Options, s) {
		return nil
	}
	return fmt.Errorf("select: %q is not an option", s)
}

func (k *selectKind) Equal(a, b any) bool { return shallowEqual(a, b) }

// file

type fileKind struct {
	cfg fileConfig
}

func newFileKind(config map[string]any) (Kind, error) {
	k := &fileKind{}
	if err := decodeConfig(config, &k.cfg); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *fileKind) Ref() string { return KindFile + "@1" }
func (k *fileKind) Empty() any  { return (*File)(nil) }

func (k *fileKind) Normalize(value any) (any, error) {
	var f *File
	switch v := value.(type) {
	case nil:
		return (*File)(nil), nil
	case *File:
		f = v
	case File:
		f = &v
	case []byte:
		f = NewFile("", "", v)
	case map[string]any:
		var err error
		if f, err = fileFromRecord(v); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("file: expected file, got %T", value)
	}
	if f == nil {
		return (*File)(nil), nil
	}
	if k.cfg.MaxSize > 0 && f.Size > k.cfg.MaxSize {
		return nil, fmt.Errorf("file: %d bytes exceeds limit of %d", f.Size, k.cfg.MaxSize)
	}
	if len(k.cfg.Accept) > 0 && f.MIME != "" && !slices.Contains(k.cfg.Accept, f.MIME) {
		return nil, fmt.Errorf("file: type %q not accepted", f.MIME)
	}
	return f, nil
}

// Equal compares file payloads by identity.
func (k *fileKind) Equal(a, b any) bool {
	fa, _ := a.(*File)
	fb, _ := b.(*File)
	return fa == fb
}

// progress

var progressShape = schema.Record(schema.Schema{
	"current": schema.Number(),
	"total":   schema.Number(),
	"label":   schema.String(),
})

type progressKind struct{}

func newProgressKind(map[string]any) (Kind, error) { return progressKind{}, nil }

func (progressKind) Ref() string { return KindProgress + "@1" }

func (progressKind) Empty() any {
	return map[string]any{"current": float64(0), "total": float64(100)}
}

// Normalize accepts a record {current, total, label} or a bare percentage.
func (p progressKind) Normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return p.Empty(), nil
	case map[string]any:
		if err := progressShape.Validate(v); err != nil {
			return nil, fmt.Errorf("progress: %w", err)
		}
		out := make(map[string]any, len(v))
		for key, val := range v {
			if key == "current" || key == "total" {
				f, err := toFloat(val)
				if err != nil {
					return nil, fmt.Errorf("progress: %w", err)
				}
				val = f
			}
			out[key] = val
		}
		if _, ok := out["total"]; !ok {
			out["total"] = float64(100)
		}
		if _, ok := out["current"]; !ok {
			out["current"] = float64(0)
		}
		return out, nil
	}
	f, err := toFloat(value)
	if err != nil {
		return nil, fmt.Errorf("progress: expected record or number, got %T", value)
	}
	return map[string]any{"current": f, "total": float64(100)}, nil
}

func (progressKind) Equal(a, b any) bool { return shallowEqual(a, b) }

// sortable-list

var listShape = schema.List(schema.Storable())

type sortableListKind struct{}

func newSortableListKind(map[string]any) (Kind, error) { return sortableListKind{}, nil }

func (sortableListKind) Ref() string { return KindSortableList + "@1" }
func (sortableListKind) Empty() any  { return []any{} }

func (sortableListKind) Normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return []any{}, nil
	case []any:
		if err := listShape.Validate(v); err != nil {
			return nil, fmt.Errorf("sortable-list: %w", err)
		}
		return domain.DeepCopy(v), nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("sortable-list: expected list, got %T", value)
}

func (sortableListKind) Equal(a, b any) bool { return shallowEqual(a, b) }

// button

type buttonKind struct{}

func newButtonKind(map[string]any) (Kind, error) { return buttonKind{}, nil }

func (buttonKind) Ref() string { return KindButton + "@1" }
func (buttonKind) Empty() any  { return nil }

func (buttonKind) Normalize(value any) (any, error) {
	if err := schema.Storable().Validate(value); err != nil {
		return nil, fmt.Errorf("button: %w", err)
	}
	return value, nil
}

// Equal is always false: every write to a button is a trigger.
func (buttonKind) Equal(a, b any) bool { return false }

// json

type jsonKind struct{}

func newJSONKind(map[string]any) (Kind, error) { return jsonKind{}, nil }

func (jsonKind) Ref() string { return KindJSON + "@1" }
func (jsonKind) Empty() any  { return nil }

func (jsonKind) Normalize(value any) (any, error) {
	if err := schema.Storable().Validate(value); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return domain.DeepCopy(value), nil
}

func (jsonKind) Equal(a, b any) bool { return shallowEqual(a, b) }
