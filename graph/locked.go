package graph

import "github.com/lnaes/engine/constraint"

// LockAnnotation freezes a surface form for a graph element. Once a graph is
// locked, VERIFY holds drafts to these exact forms.
type LockAnnotation struct {
	// Lock is the lock that produced this annotation.
	Lock constraint.LockName `json:"lock"`

	// ElementID is the node or edge the annotation binds to.
	ElementID string `json:"element_id"`

	// Surface is the exact text form the draft must use for this element.
	Surface string `json:"surface"`
}

// Locked is a graph frozen with respect to locked fields. The node and edge
// sets are exactly those of the input graph; only lock-derived annotations are
// added. It is consumed read-only after LOCK.
type Locked struct {
	Graph       *Graph              `json:"graph"`
	Locks       constraint.Locks    `json:"locks"`
	Annotations []LockAnnotation    `json:"annotations"`
	Invariants  []constraint.Invariant `json:"invariants,omitempty"`
}

// AnnotationsFor returns the annotations produced by the given lock.
func (l *Locked) AnnotationsFor(name constraint.LockName) []LockAnnotation {
	var out []LockAnnotation
	for _, a := range l.Annotations {
		if a.Lock == name {
			out = append(out, a)
		}
	}
	return out
}
