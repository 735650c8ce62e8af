package board

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/jacentio/squares/internal/keys"
	"github.com/jacentio/squares/store"
)

// Reader renders board state for participants. It is read-only.
type Reader struct {
	repo Repository
}

// NewReader creates a Reader.
func NewReader(repo Repository) *Reader {
	return &Reader{repo: repo}
}

// GetBoard returns the board's public metadata and all of its squares,
// sorted by square number. Claim ids are never included. Display names are
// blanked when the board does not show names publicly.
func (r *Reader) GetBoard(ctx context.Context, boardID string) (*BoardView, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return nil, badRequest("boardId required")
	}

	b, err := r.repo.GetBoard(ctx, boardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("board not found")
		}
		return nil, storeError("get board", err)
	}

	squares, err := r.repo.ListSquares(ctx, boardID)
	if err != nil {
		return nil, storeError("list squares", err)
	}

	view := &BoardView{
		Board:   publicBoard(b),
		Squares: make([]SquareView, 0, len(squares)),
	}
	for _, sq := range squares {
		sv := projectSquare(sq)
		if !b.ShowNamesPublicly {
			sv.DisplayName = ""
		}
		if sv.Status == SquareTaken {
			view.Board.SquaresTaken++
		}
		view.Squares = append(view.Squares, sv)
	}
	sort.Slice(view.Squares, func(i, j int) bool {
		return view.Squares[i].Number < view.Squares[j].Number
	})

	return view, nil
}

// GetClaim returns a claim record, letting a client learn whether an
// earlier attempt was recorded and what it holds.
func (r *Reader) GetClaim(ctx context.Context, boardID, claimID string) (*Claim, error) {
	boardID = strings.TrimSpace(boardID)
	claimID = strings.TrimSpace(claimID)
	if boardID == "" || claimID == "" {
		return nil, badRequest("boardId and claimId required")
	}

	c, err := r.repo.GetClaim(ctx, boardID, claimID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("claim not found")
		}
		return nil, storeError("get claim", err)
	}
	return c, nil
}

func publicBoard(b *Board) PublicBoard {
	status := b.Status
	if status == "" {
		status = BoardActive
	}
	return PublicBoard{
		ID:                 b.ID,
		Title:              b.Title,
		Subtitle:           b.Subtitle,
		TeamName:           b.TeamName,
		PricePerSquare:     b.PricePerSquare,
		MaxSquaresPerOrder: b.MaxSquaresPerOrder,
		PaymentLabel:       b.PaymentLabel,
		PaymentHandle:      b.PaymentHandle,
		ShowNamesPublicly:  b.ShowNamesPublicly,
		Status:             status,
		Theme:              b.Theme,
	}
}

func projectSquare(sq Square) SquareView {
	row, col := keys.RowCol(sq.Number)
	status := sq.Status
	if status == "" {
		status = SquareOpen
	}
	name := sq.DisplayName
	if status == SquareOpen {
		name = ""
	}
	return SquareView{
		ID:          sq.ID(),
		Number:      sq.Number,
		Row:         row,
		Col:         col,
		Status:      status,
		DisplayName: name,
	}
}
