package mapping

import (
	"context"
	"strings"
)

// Policy decides what a resolution miss does.
type Policy int

const (
	// PolicyUnset defers to the policy bound on the context, else Lenient.
	PolicyUnset Policy = iota
	// Lenient returns the caller's fallback and logs a warning.
	Lenient
	// Strict fails with a mapping_not_found error.
	Strict
)

func (p Policy) String() string {
	switch p {
	case Lenient:
		return "lenient"
	case Strict:
		return "strict"
	default:
		return "unset"
	}
}

// ParsePolicy accepts "strict" and "lenient"; anything else is unset.
func ParsePolicy(s string) Policy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return Strict
	case "lenient":
		return Lenient
	default:
		return PolicyUnset
	}
}

type policyKey struct{}

// WithPolicy binds p to ctx for every lookup that leaves its own policy unset.
func WithPolicy(ctx context.Context, p Policy) context.Context {
	return context.WithValue(ctx, policyKey{}, p)
}

// PolicyFrom returns the policy bound to ctx, Lenient when none is.
func PolicyFrom(ctx context.Context) Policy {
	if p, ok := ctx.Value(policyKey{}).(Policy); ok && p != PolicyUnset {
		return p
	}
	return Lenient
}

func (p Policy) effective(ctx context.Context) Policy {
	if p != PolicyUnset {
		return p
	}
	return PolicyFrom(ctx)
}
