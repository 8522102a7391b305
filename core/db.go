package core

import "context"

// Transactor runs fn inside a single store transaction.
// Repository calls made with the context handed to fn join that transaction;
// the transaction is rolled back when fn returns an error.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Principal is the verified identity of a caller, as resolved by the transport layer.
type Principal struct {
	UserID string
}

func (p Principal) IsZero() bool { return p.UserID == "" }
