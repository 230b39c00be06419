package models

import (
	"encoding/json"
	"fmt"

	"github.com/stridelab/clubhouse/pkg/clubhouse/docstore"
)

// ToDocument converts a model to its document-store representation via a JSON
// round trip, so field names and value types match the stored JSON exactly.
func ToDocument(v any) (docstore.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("convert %T to document: %w", v, err)
	}
	return doc, nil
}

// FromDocument decodes a stored document into the given model pointer.
func FromDocument(doc docstore.Document, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document into %T: %w", out, err)
	}
	return nil
}
