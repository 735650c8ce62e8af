package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jacentio/squares/internal/keys"
	"github.com/jacentio/squares/store"
)

// ReservationMode selects how the squares of a claim are written.
type ReservationMode string

const (
	// ReserveTransactional writes every square in one all-or-nothing
	// transaction. A lost race changes no square.
	ReserveTransactional ReservationMode = "transactional"

	// ReserveSequential writes squares one at a time in ascending order and
	// stops at the first lost race. Squares written before it stay taken
	// under the claim, and the claim row is rewritten to list exactly them.
	ReserveSequential ReservationMode = "sequential"
)

// ParseReservationMode parses a mode name; empty selects transactional.
func ParseReservationMode(s string) (ReservationMode, error) {
	switch ReservationMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReserveTransactional:
		return ReserveTransactional, nil
	case ReserveSequential:
		return ReserveSequential, nil
	default:
		return "", fmt.Errorf("unknown reservation mode %q", s)
	}
}

const defaultProbeConcurrency = 8

// ClaimerOptions configures a Claimer.
type ClaimerOptions struct {
	Mode ReservationMode

	// ProbeConcurrency bounds parallel square reads. Default: 8.
	ProbeConcurrency int

	Logger   *slog.Logger
	Recorder Recorder

	// NewClaimID overrides claim id generation.
	NewClaimID func() (string, error)
}

// ClaimRequest asks to reserve squares of a board for one display name.
type ClaimRequest struct {
	BoardID     string
	DisplayName string
	Squares     []string
}

// ClaimResult is a successful claim.
type ClaimResult struct {
	BoardID     string      `json:"boardId"`
	ClaimID     string      `json:"claimId"`
	DisplayName string      `json:"displayName"`
	Squares     []string    `json:"squares"`
	Status      ClaimStatus `json:"status"`
}

// Claimer validates claim requests and reserves squares using per-row
// optimistic concurrency. It holds no state between calls.
type Claimer struct {
	repo             Repository
	mode             ReservationMode
	probeConcurrency int
	logger           *slog.Logger
	recorder         Recorder
	newClaimID       func() (string, error)
}

// NewClaimer creates a Claimer.
func NewClaimer(repo Repository, opts ClaimerOptions) *Claimer {
	c := &Claimer{
		repo:             repo,
		mode:             opts.Mode,
		probeConcurrency: opts.ProbeConcurrency,
		logger:           opts.Logger,
		recorder:         opts.Recorder,
		newClaimID:       opts.NewClaimID,
	}
	if c.mode == "" {
		c.mode = ReserveTransactional
	}
	if c.probeConcurrency < 1 {
		c.probeConcurrency = defaultProbeConcurrency
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.newClaimID == nil {
		c.newClaimID = keys.NewClaimID
	}
	return c
}

// Mode returns the reservation mode in use.
func (c *Claimer) Mode() ReservationMode {
	return c.mode
}

// Claim reserves the requested squares for req.DisplayName.
//
// Input and board policy errors are returned before anything is written.
// Squares already taken at read time produce ErrConflict listing them, also
// before any write. The claim row is written next, then the squares. A lost
// race while writing squares is ErrConflict; what remains written depends
// on the reservation mode.
func (c *Claimer) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	start := time.Now()
	res, err := c.claim(ctx, req)

	outcome := Outcome(err)
	c.recorder.RecordClaim(outcome, len(req.Squares), time.Since(start))

	if err != nil {
		level := slog.LevelInfo
		if errors.Is(err, ErrStore) {
			level = slog.LevelError
		}
		attrs := []any{"boardId", req.BoardID, "outcome", outcome, "error", err}
		var e *Error
		if errors.As(err, &e) && len(e.Taken) > 0 {
			attrs = append(attrs, "taken", e.Taken)
		}
		c.logger.Log(ctx, level, "claim rejected", attrs...)
		return nil, err
	}

	c.logger.Info("claim committed",
		"boardId", res.BoardID,
		"claimId", res.ClaimID,
		"squares", res.Squares,
	)
	return res, nil
}

func (c *Claimer) claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	boardID := strings.TrimSpace(req.BoardID)
	if boardID == "" {
		return nil, badRequest("boardId required")
	}
	name, err := normalizeDisplayName(req.DisplayName)
	if err != nil {
		return nil, err
	}
	ids, err := NormalizeSquareIDs(req.Squares)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, badRequest("squares[] required")
	}

	b, err := c.repo.GetBoard(ctx, boardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("board not found")
		}
		return nil, storeError("get board", err)
	}
	if !b.Active() {
		return nil, invalidState("board not active")
	}
	if b.MaxSquaresPerOrder > 0 && len(ids) > b.MaxSquaresPerOrder {
		return nil, badRequest("max squares per order is %d", b.MaxSquaresPerOrder)
	}

	squares, err := c.probe(ctx, boardID, ids)
	if err != nil {
		return nil, err
	}

	var taken []string
	for _, sq := range squares {
		if !sq.Open() {
			taken = append(taken, sq.ID())
		}
	}
	if len(taken) > 0 {
		return nil, conflict("some squares already taken", taken)
	}

	claimID, err := c.newClaimID()
	if err != nil {
		return nil, storeError("generate claim id", err)
	}
	claim := &Claim{
		BoardID:     boardID,
		ID:          claimID,
		DisplayName: name,
		SquareIDs:   ids,
		Status:      ClaimUnpaid,
	}
	if err := c.repo.CreateClaim(ctx, claim); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, storeError("claim id collision", err)
		}
		return nil, storeError("create claim", err)
	}

	res := Reservation{ClaimID: claimID, DisplayName: name}
	switch c.mode {
	case ReserveSequential:
		err = c.reserveEach(ctx, claim, squares, res)
	default:
		err = c.reserveAll(ctx, claim, squares, res)
	}
	if err != nil {
		return nil, err
	}

	return &ClaimResult{
		BoardID:     boardID,
		ClaimID:     claimID,
		DisplayName: name,
		Squares:     ids,
		Status:      ClaimUnpaid,
	}, nil
}

// probe reads every requested square, capturing versions. Numbers outside
// the board are reported before any read. Reads run in parallel and the
// first missing square cancels the rest.
func (c *Claimer) probe(ctx context.Context, boardID string, ids []string) ([]Square, error) {
	numbers := make([]int, len(ids))
	for i, id := range ids {
		n, err := keys.ParseSquareID(id)
		if err != nil || n < keys.MinSquare || n > keys.MaxSquare {
			return nil, notFound("square not found: %s", id)
		}
		numbers[i] = n
	}

	squares := make([]Square, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.probeConcurrency)
	for i, n := range numbers {
		i, n := i, n
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sq, err := c.repo.GetSquare(gctx, boardID, n)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return notFound("square not found: %s", ids[i])
				}
				return err
			}
			squares[i] = *sq
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storeError("get square", err)
	}
	return squares, nil
}

func (c *Claimer) reserveAll(ctx context.Context, claim *Claim, squares []Square, res Reservation) error {
	err := c.repo.ReserveSquares(ctx, claim.BoardID, squares, res)
	if err == nil {
		return nil
	}

	var failed *store.ConditionFailedError
	switch {
	case errors.As(err, &failed):
		c.settleClaim(ctx, claim, nil)
		lost := make([]string, 0, len(failed.Updates))
		for _, i := range failed.Updates {
			if i >= 0 && i < len(squares) {
				lost = append(lost, squares[i].ID())
			}
		}
		return conflict("claim race condition, retry", lost)
	case errors.Is(err, store.ErrTransactionConflict):
		c.settleClaim(ctx, claim, nil)
		return conflict("claim race condition, retry", nil)
	default:
		// The outcome of the write is unknown, so the claim row is left as is.
		return storeError("reserve squares", err)
	}
}

func (c *Claimer) reserveEach(ctx context.Context, claim *Claim, squares []Square, res Reservation) error {
	reserved := make([]string, 0, len(squares))
	for _, sq := range squares {
		err := c.repo.ReserveSquare(ctx, sq, res)
		if err == nil {
			reserved = append(reserved, sq.ID())
			continue
		}
		if errors.Is(err, store.ErrConcurrentModification) {
			c.settleClaim(ctx, claim, reserved)
			return conflict("claim race condition, retry", []string{sq.ID()})
		}
		return storeError("reserve square "+sq.ID(), err)
	}
	return nil
}

// settleClaim rewrites the claim row to list exactly the squares that were
// reserved, or voids it when none were.
func (c *Claimer) settleClaim(ctx context.Context, claim *Claim, reserved []string) {
	if len(reserved) == 0 {
		claim.Status = ClaimVoid
		claim.SquareIDs = []string{}
	} else {
		claim.SquareIDs = reserved
	}

	if err := c.repo.UpdateClaim(ctx, claim); err != nil {
		c.logger.Error("claim record out of sync with squares",
			"boardId", claim.BoardID,
			"claimId", claim.ID,
			"reserved", reserved,
			"error", err,
		)
		return
	}
	if len(reserved) > 0 {
		c.logger.Warn("claim partially reserved",
			"boardId", claim.BoardID,
			"claimId", claim.ID,
			"reserved", reserved,
		)
	}
}
