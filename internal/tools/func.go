package tools

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"sysutils-mcp/internal/schema"
)

// Func is a typed tool function. In is the declared parameter shape.
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

// Bind decodes args into In. Keys must name a field of In exactly.
func (f Func[In, Out]) Bind(args json.RawMessage) (Invocation, error) {
	return bindArgs(f, args, false)
}

// lenientFunc is a Func whose Bind drops keys that name no field of In.
type lenientFunc[In, Out any] Func[In, Out]

func (f lenientFunc[In, Out]) Bind(args json.RawMessage) (Invocation, error) {
	return bindArgs(Func[In, Out](f), args, true)
}

func bindArgs[In, Out any](f Func[In, Out], args json.RawMessage, allowUnknown bool) (Invocation, error) {
	var in In
	if err := decodeArgs(schema.Normalize(args), &in, allowUnknown); err != nil {
		return nil, errors.Wrap(err, "decode arguments")
	}
	return func(ctx context.Context) (any, error) {
		return f(ctx, in)
	}, nil
}

// Add derives the input schema from In and registers fn under name.
func Add[In, Out any](r *Registry, name, description string, fn func(context.Context, In) (Out, error)) error {
	doc, err := schema.For[In](r.schemaOptions)
	if err != nil {
		return err
	}
	var handler Handler = Func[In, Out](fn)
	if r.schemaOptions.AllowAdditionalProperties {
		handler = lenientFunc[In, Out](fn)
	}
	return r.Register(Descriptor{
		Name:        name,
		Description: description,
		InputSchema: doc,
	}, handler)
}
