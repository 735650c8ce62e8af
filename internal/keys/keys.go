// Package keys derives the canonical row keys and identifiers used by the tables.
package keys

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// BoardsPartition is the partition key shared by every board row.
	BoardsPartition = "BOARD"

	// MinSquare and MaxSquare bound square numbers on a board.
	MinSquare = 1
	MaxSquare = 100

	// GridSize is the number of rows and of columns on a board.
	GridSize = 10

	// ClaimIDLength is the number of characters in a claim id.
	ClaimIDLength = 10
)

// claimAlphabet is URL safe; 64 symbols keep the byte mapping unbiased.
const claimAlphabet = "useandom-26T198340PX75pxJACKVERYMINDBUSHWOLF_GQZbfghjklqvwyzrict"

// SquareID returns the three-digit, zero-padded row key for a square number.
// Lexicographic order of the result equals numeric order for 1..999.
func SquareID(n int) string {
	return fmt.Sprintf("%03d", n)
}

// ParseSquareID parses a square row key (or a bare number) back to its number.
func ParseSquareID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return 0, fmt.Errorf("invalid square id %q: %w", id, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid square id %q: negative", id)
	}
	return n, nil
}

// RowCol returns the 0-indexed row and column of a square on the 10x10 grid.
func RowCol(n int) (row, col int) {
	idx := n - 1
	return idx / GridSize, idx % GridSize
}

// BoardRef returns the entity reference of a board.
func BoardRef(boardID string) string {
	return "board#" + boardID
}

// NewBoardID generates a board id of the form "board-xxxxxxxx".
func NewBoardID() string {
	return "board-" + uuid.NewString()[:8]
}

// NewClaimID generates an unguessable claim id of ClaimIDLength characters.
func NewClaimID() (string, error) {
	buf := make([]byte, ClaimIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate claim id: %w", err)
	}
	for i, b := range buf {
		buf[i] = claimAlphabet[b&63]
	}
	return string(buf), nil
}
