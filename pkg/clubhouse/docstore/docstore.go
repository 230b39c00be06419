package docstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNotFound is returned by Get when no document exists for the id, and
	// by Update when the target document is missing. Lookups that miss are a
	// normal outcome, not a failure.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrBatchTooLarge is returned by BatchWrite when the batch exceeds the
	// backend's per-batch write ceiling. Callers must chunk before submitting.
	ErrBatchTooLarge = errors.New("docstore: batch exceeds maximum size")
)

// DefaultMaxBatchSize is the hard per-batch write ceiling of the backing
// stores.
const DefaultMaxBatchSize = 500

// Document is a stored record. Values follow JSON conventions: strings,
// float64 numbers, bools, []any and nested Documents.
type Document = map[string]any

// Filter is an equality constraint on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Query describes a filtered, optionally paginated read of a collection.
// OrderBy names a top-level field; StartAfter is an exclusive cursor on that
// field's value. A zero Limit means no limit.
type Query struct {
	Filters    []Filter
	OrderBy    string
	StartAfter string
	Limit      int
}

// Write is one entry of an atomic batch. With Merge set, Data is merged into
// any existing document instead of replacing it.
type Write struct {
	Collection string
	ID         string
	Data       Document
	Merge      bool
}

// Client is the set of storage primitives this service consumes. The
// implementations in this package are reference backends; the contract is
// what matters: Update field operators and BatchWrite are atomic per call.
type Client interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	RunQuery(ctx context.Context, collection string, q Query) ([]Document, error)
	Set(ctx context.Context, collection, id string, data Document, merge bool) error
	Update(ctx context.Context, collection, id string, fields Document) error
	BatchWrite(ctx context.Context, writes []Write) error
	MaxBatchSize() int
}

type incrementOp struct {
	delta float64
}

type arrayUnionOp struct {
	values []any
}

// Increment returns an Update field operator that atomically adds delta to a
// numeric field, treating a missing field as zero.
func Increment(delta int64) any {
	return incrementOp{delta: float64(delta)}
}

// ArrayUnion returns an Update field operator that appends the given values
// to an array field, skipping values already present.
func ArrayUnion(values ...any) any {
	return arrayUnionOp{values: values}
}

// applyFields applies an Update field map to a document in place, resolving
// Increment and ArrayUnion operators.
func applyFields(doc Document, fields Document) error {
	for key, value := range fields {
		switch op := value.(type) {
		case incrementOp:
			current, err := toFloat64(doc[key])
			if err != nil {
				return fmt.Errorf("increment %q: %w", key, err)
			}
			doc[key] = current + op.delta
		case arrayUnionOp:
			arr, err := toArray(doc[key])
			if err != nil {
				return fmt.Errorf("array union %q: %w", key, err)
			}
			for _, v := range op.values {
				if !arrayContains(arr, v) {
					arr = append(arr, v)
				}
			}
			doc[key] = arr
		default:
			doc[key] = value
		}
	}
	return nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("field is %T, not numeric", v)
	}
}

func toArray(v any) ([]any, error) {
	switch a := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return a, nil
	default:
		return nil, fmt.Errorf("field is %T, not an array", v)
	}
}

func arrayContains(arr []any, v any) bool {
	for _, existing := range arr {
		if reflect.DeepEqual(existing, v) {
			return true
		}
	}
	return false
}

// cloneDocument returns a deep copy so callers and the store never alias the
// same maps or slices.
func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return cloneDocument(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// mergeDocument merges src's top-level fields into dst, returning dst.
func mergeDocument(dst, src Document) Document {
	if dst == nil {
		dst = make(Document, len(src))
	}
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}
