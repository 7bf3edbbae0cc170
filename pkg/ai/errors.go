package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/ojpp/broadlistening/backend/pkg/common"
)

var (
	// ErrUnavailable means the analyzer backend could not be reached or
	// refused the request. The in-flight batch fails and may be retried.
	ErrUnavailable = errors.New("opinion analyzer unavailable")

	// ErrTimeout means the analyzer call exceeded its deadline.
	ErrTimeout = errors.New("opinion analyzer timed out")

	// ErrMalformedOutput means the analyzer answered with output that does
	// not satisfy the classification contract.
	ErrMalformedOutput = errors.New("opinion analyzer returned malformed output")
)

// WrapTransportErr maps a raw backend error onto the analyzer taxonomy.
// Deadline errors become ErrTimeout, everything else ErrUnavailable.
func WrapTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Malformed wraps a contract violation with ErrMalformedOutput.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedOutput, fmt.Sprintf(format, args...))
}

// ValidateClassification checks the analyzer output against the contract:
// a known node type, confidence in [0,1], edge weights in [0,1] with known
// relations, and a non-empty embedding.
func ValidateClassification(c *Classification) error {
	if c == nil {
		return Malformed("nil classification")
	}
	if !common.ValidNodeType(c.NodeType) {
		return Malformed("unknown node type %q", c.NodeType)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return Malformed("confidence %f out of range", c.Confidence)
	}
	for _, e := range c.ProposedEdges {
		if !common.ValidRelation(e.Relation) {
			return Malformed("unknown relation %q", e.Relation)
		}
		if e.Weight < 0 || e.Weight > 1 {
			return Malformed("edge weight %f out of range", e.Weight)
		}
	}
	if len(c.Embedding) == 0 {
		return Malformed("empty embedding")
	}
	return nil
}
