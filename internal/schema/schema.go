package schema

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Options controls how an input schema is derived.
type Options struct {
	// AllowAdditionalProperties admits argument fields the parameter type does not declare.
	AllowAdditionalProperties bool
}

// Doc is a finalized input schema document.
// It is immutable once built and safe for concurrent use.
type Doc struct {
	raw         json.RawMessage
	resolved    *jsonschema.Resolved
	fingerprint uint64
}

// For derives the input schema of the parameter type T.
func For[T any](opts Options) (*Doc, error) {
	t := reflect.TypeFor[T]()
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, NewGenerationError(t.String(), err)
	}
	doc, err := build(s, opts)
	if err != nil {
		return nil, NewGenerationError(t.String(), err)
	}
	return doc, nil
}

// FromSchema finalizes a hand-written schema, e.g. one loaded from a file.
func FromSchema(s *jsonschema.Schema, opts Options) (*Doc, error) {
	if s == nil {
		return nil, NewGenerationError("<nil>", errors.New("schema is nil"))
	}
	doc, err := build(s, opts)
	if err != nil {
		return nil, NewGenerationError("<schema>", err)
	}
	return doc, nil
}

func build(s *jsonschema.Schema, opts Options) (*Doc, error) {
	root := *s
	switch {
	case opts.AllowAdditionalProperties:
		root.AdditionalProperties = nil
	case root.Type == "object" && root.AdditionalProperties == nil:
		root.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
	}

	raw, err := json.Marshal(&root)
	if err != nil {
		return nil, errors.Wrap(err, "marshal schema")
	}

	// Callers only need the shape, not the dialect.
	raw, err = sjson.DeleteBytes(raw, "$schema")
	if err != nil {
		return nil, errors.Wrap(err, "strip $schema")
	}

	if gjson.GetBytes(raw, "type").String() == "object" && !gjson.GetBytes(raw, "properties").Exists() {
		raw, err = sjson.SetRawBytes(raw, "properties", []byte("{}"))
		if err != nil {
			return nil, errors.Wrap(err, "set properties")
		}
	}

	// Validate against exactly what is advertised.
	var final jsonschema.Schema
	if err := json.Unmarshal(raw, &final); err != nil {
		return nil, errors.Wrap(err, "reload schema")
	}
	resolved, err := final.Resolve(nil)
	if err != nil {
		return nil, errors.Wrap(err, "resolve schema")
	}

	return &Doc{
		raw:         raw,
		resolved:    resolved,
		fingerprint: xxhash.Sum64(raw),
	}, nil
}

// Bytes returns a copy of the JSON document.
func (d *Doc) Bytes() []byte {
	return bytes.Clone(d.raw)
}

// String returns the JSON document.
func (d *Doc) String() string {
	return string(d.raw)
}

// Fingerprint is a stable hash of the document bytes.
func (d *Doc) Fingerprint() uint64 {
	return d.fingerprint
}

// MarshalJSON emits the document as-is.
func (d *Doc) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return d.Bytes(), nil
}

// Validate checks raw arguments against the document and reports the first violation.
// Empty and null arguments are treated as an empty object.
func (d *Doc) Validate(args json.RawMessage) error {
	var instance any
	if err := json.Unmarshal(Normalize(args), &instance); err != nil {
		return errors.Wrap(err, "arguments are not valid JSON")
	}
	if err := d.resolved.Validate(instance); err != nil {
		return err
	}
	return nil
}

// Normalize maps absent or null arguments to an empty object.
func Normalize(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return trimmed
}
