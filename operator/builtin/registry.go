package builtin

import (
	"github.com/lnaes/engine/ontology"
	"github.com/lnaes/engine/operator"
)

// NewRegistry wires all built-in operators over the given knowledge base,
// with the default v1 contract schemas.
func NewRegistry(kb ontology.KnowledgeBase) *operator.Registry {
	return &operator.Registry{
		Extractor: NewExtractor(),
		Resolver:  NewResolver(),
		Weighter:  NewWeighter(kb),
		Locker:    NewLocker(),
		Styler:    NewStyler(),
		Verifier:  NewVerifier(),
		Rewriter:  NewRewriter(),
		Schemas:   operator.NewSchemaRegistry(),
	}
}
