package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// marshalPredicates converts predicates to canonical JSON TEXT for storage.
// Arguments are Str/Int/Bool only, so the output is deterministic.
func marshalPredicates(preds []ir.Predicate) (string, error) {
	list := make([]any, len(preds))
	for i, p := range preds {
		args := make([]ir.Value, len(p.Args))
		copy(args, p.Args)
		list[i] = map[string]any{"name": p.Name, "args": args}
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal predicates: %w", err)
	}
	return string(data), nil
}

// marshalAttrs converts event attributes to canonical JSON TEXT.
func marshalAttrs(attrs ir.Object) (string, error) {
	if attrs == nil {
		attrs = ir.Object{}
	}
	data, err := ir.MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(data), nil
}

// unmarshalPredicates parses predicates TEXT. Predicate.UnmarshalJSON
// rejects floats so large integers keep their precision.
func unmarshalPredicates(data string) ([]ir.Predicate, error) {
	if data == "" || data == "[]" {
		return []ir.Predicate{}, nil
	}
	var preds []ir.Predicate
	if err := json.Unmarshal([]byte(data), &preds); err != nil {
		return nil, fmt.Errorf("unmarshal predicates: %w", err)
	}
	return preds, nil
}

// unmarshalAttrs parses attributes TEXT.
func unmarshalAttrs(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	return obj, nil
}
