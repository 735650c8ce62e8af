package board

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jacentio/squares/internal/keys"
)

// Defaults applied to omitted board fields.
const (
	DefaultPricePerSquare = 20
	DefaultPaymentLabel   = "Venmo"

	// DemoBoardID is the board Seed provisions when none is named.
	DemoBoardID = "test-board"

	maxBoardIDLength = 64
)

// ProvisionInput is the metadata for a new or re-seeded board. Nil and
// empty fields take defaults.
type ProvisionInput struct {
	BoardID            string
	Title              string
	Subtitle           string
	TeamName           string
	PricePerSquare     *float64
	PaymentLabel       string
	PaymentHandle      string
	MaxSquaresPerOrder *int
	Status             BoardStatus
	ShowNamesPublicly  *bool
	Theme              Theme
}

// Provisioner creates boards and their squares.
type Provisioner struct {
	repo     Repository
	logger   *slog.Logger
	recorder Recorder
}

// NewProvisioner creates a Provisioner. logger and recorder may be nil.
func NewProvisioner(repo Repository, logger *slog.Logger, recorder Recorder) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Provisioner{repo: repo, logger: logger, recorder: recorder}
}

// Provision upserts the board row and all 100 squares as open, returning
// the board id. Calling it again for the same id resets the metadata and
// every square, including claimed ones; guarding against that is the
// caller's responsibility.
func (p *Provisioner) Provision(ctx context.Context, in ProvisionInput) (string, error) {
	id, err := p.provision(ctx, in)
	p.recorder.RecordProvision(Outcome(err))
	if err != nil {
		p.logger.Error("provision failed", "boardId", in.BoardID, "error", err)
		return "", err
	}
	p.logger.Info("board provisioned", "boardId", id)
	return id, nil
}

func (p *Provisioner) provision(ctx context.Context, in ProvisionInput) (string, error) {
	b, err := newBoard(in)
	if err != nil {
		return "", err
	}

	if err := p.repo.PutBoard(ctx, b); err != nil {
		return "", storeError("put board", err)
	}

	squares := make([]Square, 0, keys.MaxSquare)
	for n := keys.MinSquare; n <= keys.MaxSquare; n++ {
		squares = append(squares, Square{
			BoardID: b.ID,
			Number:  n,
			Status:  SquareOpen,
		})
	}
	if err := p.repo.PutSquares(ctx, b.ID, squares); err != nil {
		return "", storeError("put squares", err)
	}

	return b.ID, nil
}

// Seed provisions the fixed demo board.
func (p *Provisioner) Seed(ctx context.Context, boardID string) (string, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		boardID = DemoBoardID
	}
	price := float64(DefaultPricePerSquare)
	maxPerOrder := 10
	showNames := true
	return p.Provision(ctx, ProvisionInput{
		BoardID:            boardID,
		Title:              "Test Board",
		TeamName:           "Doms",
		PricePerSquare:     &price,
		MaxSquaresPerOrder: &maxPerOrder,
		Status:             BoardActive,
		ShowNamesPublicly:  &showNames,
	})
}

// ListBoards returns the metadata of every board.
func (p *Provisioner) ListBoards(ctx context.Context) ([]Board, error) {
	boards, err := p.repo.ListBoards(ctx)
	if err != nil {
		return nil, storeError("list boards", err)
	}
	return boards, nil
}

// newBoard validates input and applies defaults.
func newBoard(in ProvisionInput) (*Board, error) {
	id := strings.TrimSpace(in.BoardID)
	if id == "" {
		id = keys.NewBoardID()
	}
	if len(id) > maxBoardIDLength {
		return nil, badRequest("boardId longer than %d characters", maxBoardIDLength)
	}
	if strings.ContainsAny(id, "#/") {
		return nil, badRequest("boardId must not contain '#' or '/'")
	}

	b := &Board{
		ID:                id,
		Title:             strings.TrimSpace(in.Title),
		Subtitle:          strings.TrimSpace(in.Subtitle),
		TeamName:          strings.TrimSpace(in.TeamName),
		PricePerSquare:    DefaultPricePerSquare,
		PaymentLabel:      strings.TrimSpace(in.PaymentLabel),
		PaymentHandle:     strings.TrimSpace(in.PaymentHandle),
		Status:            BoardStatus(strings.ToLower(strings.TrimSpace(string(in.Status)))),
		ShowNamesPublicly: true,
		Theme:             in.Theme,
	}
	if in.PricePerSquare != nil {
		if *in.PricePerSquare < 0 {
			return nil, badRequest("pricePerSquare must not be negative")
		}
		b.PricePerSquare = *in.PricePerSquare
	}
	if in.MaxSquaresPerOrder != nil {
		if *in.MaxSquaresPerOrder < 0 {
			return nil, badRequest("maxSquaresPerOrder must not be negative")
		}
		b.MaxSquaresPerOrder = *in.MaxSquaresPerOrder
	}
	if in.ShowNamesPublicly != nil {
		b.ShowNamesPublicly = *in.ShowNamesPublicly
	}
	if b.PaymentLabel == "" {
		b.PaymentLabel = DefaultPaymentLabel
	}
	switch b.Status {
	case "":
		b.Status = BoardActive
	case BoardActive, BoardClosed:
	default:
		return nil, badRequest("status must be %q or %q", BoardActive, BoardClosed)
	}
	return b, nil
}
