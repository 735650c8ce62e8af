// Package memstore is an in-memory board.Repository. Every row carries a
// version that changes on each write, and conditional writes behave like
// their DynamoDB counterparts, so claim races can be exercised without a
// database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jacentio/squares/board"
	"github.com/jacentio/squares/internal/keys"
	"github.com/jacentio/squares/store"
)

type squareKey struct {
	boardID string
	number  int
}

type claimKey struct {
	boardID string
	claimID string
}

// Hooks lets tests interleave other work with a claim in flight.
type Hooks struct {
	// BeforeReserve runs before each ReserveSquare and ReserveSquares call,
	// outside the lock.
	BeforeReserve func(boardID string, squares []board.Square)
}

// Store is a board.Repository kept in process memory.
type Store struct {
	mu      sync.Mutex
	boards  map[string]board.Board
	squares map[squareKey]board.Square
	claims  map[claimKey]board.Claim
	hooks   Hooks
}

var _ board.Repository = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		boards:  make(map[string]board.Board),
		squares: make(map[squareKey]board.Square),
		claims:  make(map[claimKey]board.Claim),
	}
}

// SetHooks installs test hooks.
func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// GetBoard implements board.Repository.
func (s *Store) GetBoard(ctx context.Context, boardID string) (*board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[boardID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

// PutBoard implements board.Repository.
func (s *Store) PutBoard(ctx context.Context, b *board.Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	stored := *b
	stored.CreatedAt = ts
	if prev, ok := s.boards[b.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	stored.UpdatedAt = ts
	s.boards[b.ID] = stored
	return nil
}

// ListBoards implements board.Repository.
func (s *Store) ListBoards(ctx context.Context) ([]board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	boards := make([]board.Board, 0, len(s.boards))
	for _, b := range s.boards {
		boards = append(boards, b)
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].ID < boards[j].ID })
	return boards, nil
}

// ListSquares implements board.Repository. Squares come back in map order,
// like an unordered backend would return them.
func (s *Store) ListSquares(ctx context.Context, boardID string) ([]board.Square, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var squares []board.Square
	for k, sq := range s.squares {
		if k.boardID == boardID {
			squares = append(squares, sq)
		}
	}
	return squares, nil
}

// GetSquare implements board.Repository.
func (s *Store) GetSquare(ctx context.Context, boardID string, number int) (*board.Square, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.squares[squareKey{boardID, number}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sq, nil
}

// PutSquares implements board.Repository. Versions are bumped, not reset.
func (s *Store) PutSquares(ctx context.Context, boardID string, squares []board.Square) error {
	if len(squares) > store.MaxTransactItems {
		return store.ErrTooManyItems
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	for _, sq := range squares {
		k := squareKey{boardID, sq.Number}
		stored := sq
		stored.BoardID = boardID
		stored.Version = s.squares[k].Version + 1
		stored.UpdatedAt = ts
		s.squares[k] = stored
	}
	return nil
}

// CreateClaim implements board.Repository.
func (s *Store) CreateClaim(ctx context.Context, c *board.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := claimKey{c.BoardID, c.ID}
	if _, exists := s.claims[k]; exists {
		return store.ErrAlreadyExists
	}

	ts := now()
	stored := *c
	stored.SquareIDs = append([]string(nil), c.SquareIDs...)
	stored.Version = 1
	stored.CreatedAt = ts
	stored.UpdatedAt = ts
	s.claims[k] = stored

	c.Version = 1
	c.CreatedAt = ts
	c.UpdatedAt = ts
	return nil
}

// GetClaim implements board.Repository.
func (s *Store) GetClaim(ctx context.Context, boardID, claimID string) (*board.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimKey{boardID, claimID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	c.SquareIDs = append([]string(nil), c.SquareIDs...)
	return &c, nil
}

// UpdateClaim implements board.Repository.
func (s *Store) UpdateClaim(ctx context.Context, c *board.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := claimKey{c.BoardID, c.ID}
	stored, ok := s.claims[k]
	if !ok || stored.Version != c.Version {
		return store.ErrConcurrentModification
	}
	stored.SquareIDs = append([]string(nil), c.SquareIDs...)
	stored.Status = c.Status
	stored.Version++
	stored.UpdatedAt = now()
	s.claims[k] = stored

	c.Version = stored.Version
	return nil
}

// ReserveSquare implements board.Repository.
func (s *Store) ReserveSquare(ctx context.Context, sq board.Square, r board.Reservation) error {
	s.beforeReserve(sq.BoardID, []board.Square{sq})

	s.mu.Lock()
	defer s.mu.Unlock()

	k := squareKey{sq.BoardID, sq.Number}
	current, ok := s.squares[k]
	if !ok || current.Version != sq.Version || !current.Open() {
		return store.ErrConcurrentModification
	}
	s.reserve(k, current, r, now())
	return nil
}

// ReserveSquares implements board.Repository.
func (s *Store) ReserveSquares(ctx context.Context, boardID string, squares []board.Square, r board.Reservation) error {
	if len(squares) > store.MaxTransactItems {
		return store.ErrTooManyItems
	}
	s.beforeReserve(boardID, squares)

	s.mu.Lock()
	defer s.mu.Unlock()

	failed := &store.ConditionFailedError{}
	for i, sq := range squares {
		current, ok := s.squares[squareKey{boardID, sq.Number}]
		if !ok || current.Version != sq.Version || !current.Open() {
			failed.Updates = append(failed.Updates, i)
		}
	}
	if len(failed.Updates) > 0 {
		return failed
	}

	ts := now()
	for _, sq := range squares {
		k := squareKey{boardID, sq.Number}
		s.reserve(k, s.squares[k], r, ts)
	}
	return nil
}

// AdjustSquaresTaken moves a board's tally by delta, refusing to go below
// zero.
func (s *Store) AdjustSquaresTaken(ctx context.Context, boardID string, delta int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[boardID]
	if !ok || b.SquaresTaken+delta < 0 {
		return false, nil
	}
	b.SquaresTaken += delta
	s.boards[boardID] = b
	return true, nil
}

func (s *Store) reserve(k squareKey, current board.Square, r board.Reservation, ts string) {
	current.Status = board.SquareTaken
	current.DisplayName = r.DisplayName
	current.ClaimID = r.ClaimID
	current.Version++
	current.UpdatedAt = ts
	s.squares[k] = current
}

func (s *Store) beforeReserve(boardID string, squares []board.Square) {
	s.mu.Lock()
	hook := s.hooks.BeforeReserve
	s.mu.Unlock()

	if hook != nil {
		hook(boardID, squares)
	}
}

// Owners returns the claim id recorded on each taken square of a board,
// keyed by square id. Intended for invariant checks.
func (s *Store) Owners(boardID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := make(map[string]string)
	for k, sq := range s.squares {
		if k.boardID == boardID && sq.Status == board.SquareTaken {
			owners[keys.SquareID(k.number)] = sq.ClaimID
		}
	}
	return owners
}

// Claims returns every claim of a board.
func (s *Store) Claims(boardID string) []board.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claims []board.Claim
	for k, c := range s.claims {
		if k.boardID == boardID {
			c.SquareIDs = append([]string(nil), c.SquareIDs...)
			claims = append(claims, c)
		}
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].ID < claims[j].ID })
	return claims
}
