package jsvm

import (
	"encoding/json"
	"slices"

	"github.com/dop251/goja"

	"github.com/aretw0/toolbake/pkg/widget"
)

// toJS converts a widget value into a frozen JavaScript value. Binary
// payloads become ArrayBuffers, files become {name, mime, size, data}.
func (r *run) toJS(v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Null()
	case []byte:
		return r.vm.ToValue(r.vm.NewArrayBuffer(slices.Clone(x)))
	case *widget.File:
		if x == nil {
			return goja.Null()
		}
		return r.frozen(map[string]any{
			"name": x.Name,
			"mime": x.MIME,
			"size": x.Size,
			"data": x.Data,
		})
	case map[string]any:
		return r.frozen(x)
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = r.toJS(item)
		}
		arr := r.vm.NewArray(items...)
		_, _ = r.freeze(goja.Undefined(), arr)
		return arr
	case []string:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = item
		}
		arr := r.vm.NewArray(items...)
		_, _ = r.freeze(goja.Undefined(), arr)
		return arr
	}
	return r.vm.ToValue(v)
}

func (r *run) frozen(m map[string]any) goja.Value {
	obj := r.vm.NewObject()
	for k, v := range m {
		_ = obj.Set(k, r.toJS(v))
	}
	_, _ = r.freeze(goja.Undefined(), obj)
	return obj
}

// exportValue converts a JavaScript value into plain Go data.
// undefined and null become nil and ArrayBuffers become byte slices.
func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return normalize(v.Export())
}

func normalize(x any) any {
	switch t := x.(type) {
	case goja.ArrayBuffer:
		return slices.Clone(t.Bytes())
	case goja.Value:
		return exportValue(t)
	case map[string]any:
		for k, v := range t {
			t[k] = normalize(v)
		}
		return t
	case []any:
		for i, v := range t {
			t[i] = normalize(v)
		}
		return t
	}
	return x
}

func formatArg(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		if _, isFn := goja.AssertFunction(obj); !isFn {
			if b, err := json.Marshal(exportValue(obj)); err == nil {
				return string(b)
			}
		}
	}
	return v.String()
}
