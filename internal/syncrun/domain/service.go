package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service tracks long-running pull syncs.
type Service interface {
	Start(ctx context.Context, typ Type) (snowflake.ID, error)
	// Progress raises items_synced to items; it never lowers it.
	Progress(ctx context.Context, id snowflake.ID, items int64) error
	// Finish is a no-op for a run that already reached a terminal status.
	Finish(ctx context.Context, id snowflake.ID, success bool, message string) error
	// Status reaps stale runs before reading.
	Status(ctx context.Context, id snowflake.ID) (View, error)
	ReapStale(ctx context.Context) (int, error)
}

var (
	ErrInvalidType  = errors.New("invalid_sync_type")
	ErrInvalidID    = errors.New("invalid_sync_run_id")
	ErrInvalidItems = errors.New("invalid_items_synced")
	ErrNotFound     = errors.New("sync_run_not_found")
	ErrNotRunning   = errors.New("sync_run_not_running")
)
