package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Lookup fetches a customer from the upstream platform. A nil customer with a
// nil error means the platform does not know the id.
type Lookup interface {
	FetchCustomer(ctx context.Context, externalID string) (*RemoteCustomer, error)
}

type UpsertCustomerRequest struct {
	ExternalID string
	Name       string
	Email      string
	Tags       []string
}

type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (Customer, error)
	// Resolve returns the local customer for an upstream id, consulting the
	// Lookup when unknown. An unknown customer is returned unsaved; Ensure
	// persists it inside the caller's transaction.
	Resolve(ctx context.Context, externalID string) (*Customer, error)
	Ensure(ctx context.Context, tx *gorm.DB, customer *Customer) error
	Upsert(ctx context.Context, req UpsertCustomerRequest) (Customer, error)
}

// AgentTag marks an upstream customer as a commission-earning agent.
const AgentTag = "agent"

var (
	ErrInvalidExternalID = errors.New("invalid_customer_external_id")
	ErrNotFound          = errors.New("customer_not_found")
	ErrLookupFailed      = errors.New("customer_lookup_failed")
)
