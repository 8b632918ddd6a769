// Package apispec embeds the service's OpenAPI document and validates request
// bodies against its schemas.
package apispec

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var document []byte

var ErrSchema = errors.New("request does not match schema")

// YAML returns the raw OpenAPI document.
func YAML() []byte {
	out := make([]byte, len(document))
	copy(out, document)
	return out
}

type Spec struct {
	doc *openapi3.T
}

func Load(ctx context.Context) (*Spec, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return &Spec{doc: doc}, nil
}

// ValidateJSON checks a JSON body against the named component schema.
func (s *Spec) ValidateJSON(schema string, body []byte) error {
	ref, ok := s.doc.Components.Schemas[schema]
	if !ok || ref.Value == nil {
		return fmt.Errorf("unknown schema %q", schema)
	}
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := ref.Value.VisitJSON(value, openapi3.MultiErrors()); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
