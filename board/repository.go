package board

import (
	"context"
	"time"
)

// Repository is the persistence the board components need. Implementations
// report failures with the store package sentinels: store.ErrNotFound,
// store.ErrAlreadyExists, store.ErrConcurrentModification,
// store.ErrTransactionConflict and *store.ConditionFailedError.
type Repository interface {
	GetBoard(ctx context.Context, boardID string) (*Board, error)

	// PutBoard creates or replaces board metadata.
	PutBoard(ctx context.Context, b *Board) error

	ListBoards(ctx context.Context) ([]Board, error)

	// ListSquares returns every square of a board in one partition read.
	ListSquares(ctx context.Context, boardID string) ([]Square, error)

	GetSquare(ctx context.Context, boardID string, number int) (*Square, error)

	// PutSquares creates or replaces squares of one board atomically.
	PutSquares(ctx context.Context, boardID string, squares []Square) error

	// CreateClaim writes a new claim row, touching no other row. It fails
	// with store.ErrAlreadyExists on id collision.
	CreateClaim(ctx context.Context, c *Claim) error

	GetClaim(ctx context.Context, boardID, claimID string) (*Claim, error)

	// UpdateClaim rewrites the claim's squares and status, conditioned on
	// c.Version.
	UpdateClaim(ctx context.Context, c *Claim) error

	// ReserveSquare marks one square taken, conditioned on its version and
	// on it still being open.
	ReserveSquare(ctx context.Context, sq Square, r Reservation) error

	// ReserveSquares marks every square taken in one all-or-nothing write,
	// each conditioned on its version and on it still being open. Only the
	// squares' rows take part. Failures are *store.ConditionFailedError with
	// Updates indexing into squares, or store.ErrTransactionConflict.
	ReserveSquares(ctx context.Context, boardID string, squares []Square, r Reservation) error
}

// Recorder receives outcome measurements.
type Recorder interface {
	RecordClaim(outcome string, squares int, d time.Duration)
	RecordProvision(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordClaim(string, int, time.Duration) {}
func (nopRecorder) RecordProvision(string)                 {}
