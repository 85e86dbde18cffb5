// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fallback decides when a phase should be re-attempted with an
// alternate model family and runs that second attempt.
package fallback

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pdiddy/dossier/internal/capability"
	"github.com/pdiddy/dossier/internal/provider"
)

// Resolver maps a primary model to its fallback.
type Resolver struct {
	caps       *capability.Resolver
	candidates []string
}

// NewResolver returns a resolver that picks from candidates in order.
func NewResolver(caps *capability.Resolver, candidates []string) *Resolver {
	cs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			cs = append(cs, c)
		}
	}
	return &Resolver{caps: caps, candidates: cs}
}

// Resolve returns the first candidate in the classic family that differs
// from primary. Only advanced-family primaries have a fallback.
func (r *Resolver) Resolve(primary string) (string, bool) {
	if r == nil {
		return "", false
	}
	if r.caps.Resolve(primary).Family != capability.FamilyAdvanced {
		return "", false
	}
	for _, c := range r.candidates {
		if strings.EqualFold(c, strings.TrimSpace(primary)) {
			continue
		}
		if r.caps.Resolve(c).Family == capability.FamilyClassic {
			return c, true
		}
	}
	return "", false
}

// Eligible reports whether err may be retried on a fallback model. Parse
// failures and capability mismatches are; timeouts, cancellations and
// provider transport failures are not.
func Eligible(err error) bool {
	if err == nil {
		return false
	}
	// A deadline can arrive wrapped together with a parse failure; the
	// deadline wins.
	if errors.Is(err, provider.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, provider.ErrParse) || errors.Is(err, provider.ErrCapability)
}

// Result is what Run returns on success.
type Result[T any] struct {
	Value        T
	Model        string
	UsedFallback bool
}

// Run executes attempt against primary. If that fails with an eligible
// error, resolve is consulted for an alternate model and attempt runs once
// more against it; the alternate's failure is terminal. resolve is never
// called for ineligible failures. attempt is expected to run the full
// extraction protocol including its own retries.
func Run[T any](ctx context.Context, logger *slog.Logger, phaseID, primary string, resolve func(primary string) (string, bool), attempt func(ctx context.Context, model string) (T, error)) (Result[T], error) {
	if logger == nil {
		logger = slog.Default()
	}

	v, err := attempt(ctx, primary)
	if err == nil {
		return Result[T]{Value: v, Model: primary}, nil
	}
	if !Eligible(err) || ctx.Err() != nil || resolve == nil {
		return Result[T]{Model: primary}, err
	}
	alternate, ok := resolve(primary)
	if !ok {
		return Result[T]{Model: primary}, err
	}

	logger.Warn("primary model failed, switching to fallback",
		"phase", phaseID, "primary", primary, "fallback", alternate,
		"kind", provider.Classify(err).String(), "error", err)

	v, err = attempt(ctx, alternate)
	if err != nil {
		return Result[T]{Model: alternate, UsedFallback: true}, err
	}
	return Result[T]{Value: v, Model: alternate, UsedFallback: true}, nil
}
