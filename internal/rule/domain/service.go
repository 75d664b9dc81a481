package domain

import (
	"context"
	"errors"
)

// Resolver matches classifications against a snapshot of active rules.
type Resolver interface {
	Resolve(Classification) Resolution
	HasConflictingDefaults() bool
}

// Loader builds a fresh rule snapshot from storage.
type Loader interface {
	Load(ctx context.Context) (Resolver, error)
}

var (
	ErrRulesUnavailable = errors.New("rules_unavailable")
	ErrInvalidRule      = errors.New("invalid_rule")
)
