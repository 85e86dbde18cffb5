// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"errors"
)

// Sentinel errors for each failure class. Stages wrap them with
// fmt.Errorf("...: %w", ErrX) so callers classify with errors.Is.
var (
	// ErrParse means the response could not be coerced into the schema.
	ErrParse = errors.New("structured output parse failure")

	// ErrCapability means the request needs a feature the model lacks.
	ErrCapability = errors.New("model capability mismatch")

	// ErrTimeout means the phase exceeded its deadline.
	ErrTimeout = errors.New("phase timed out")

	// ErrProvider is a transport or HTTP-level failure from the provider.
	ErrProvider = errors.New("provider request failed")

	// ErrPersistence is a cache or metrics I/O failure. It is logged and
	// never propagated out of the pipeline.
	ErrPersistence = errors.New("persistence failure")
)

// Kind is the failure class of an error.
type Kind int

const (
	KindNone Kind = iota
	KindParse
	KindCapability
	KindTimeout
	KindProvider
	KindPersistence
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindParse:
		return "parse"
	case KindCapability:
		return "capability"
	case KindTimeout:
		return "timeout"
	case KindProvider:
		return "provider"
	case KindPersistence:
		return "persistence"
	case KindCanceled:
		return "canceled"
	}
	return "unknown"
}

// Classify maps err to its failure class. A bare context deadline counts as
// a timeout and a bare cancellation as canceled; any other unclassified
// error is treated as a provider failure.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrCapability):
		return KindCapability
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrProvider):
		return KindProvider
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindProvider
}
