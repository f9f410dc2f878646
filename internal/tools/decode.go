package tools

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// fieldCache maps a struct type to the exact JSON names of its fields.
var fieldCache sync.Map

// decodeArgs decodes a JSON object into v, matching keys to field names
// exactly. Keys that name no field are dropped when allowUnknown is set and
// rejected otherwise.
func decodeArgs(data []byte, v any, allowUnknown bool) error {
	if fields, ok := jsonFields(reflect.TypeOf(v)); ok {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		dropped := false
		for key := range obj {
			if fields[key] {
				continue
			}
			if !allowUnknown {
				return errors.Newf("unknown field %q", key)
			}
			delete(obj, key)
			dropped = true
		}
		if dropped {
			filtered, err := json.Marshal(obj)
			if err != nil {
				return err
			}
			data = filtered
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if !allowUnknown {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}

// jsonFields returns the JSON names of the struct behind t. It reports false
// when t does not lead to a struct.
func jsonFields(t reflect.Type) (map[string]bool, bool) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, false
	}
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(map[string]bool), true
	}

	fields := map[string]bool{}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || (f.Anonymous && f.Tag.Get("json") == "") {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		fields[name] = true
	}
	fieldCache.Store(t, fields)
	return fields, true
}
