package board

import "github.com/jacentio/squares/internal/keys"

// BoardStatus is the lifecycle state of a board.
type BoardStatus string

const (
	BoardActive BoardStatus = "active"
	BoardClosed BoardStatus = "closed"
)

// SquareStatus is the occupancy state of a square.
type SquareStatus string

const (
	SquareOpen  SquareStatus = "open"
	SquareTaken SquareStatus = "taken"
)

// ClaimStatus is the payment state of a claim.
type ClaimStatus string

const (
	ClaimUnpaid ClaimStatus = "unpaid"
	ClaimPaid   ClaimStatus = "paid"

	// ClaimVoid marks a claim whose squares were never reserved.
	ClaimVoid ClaimStatus = "void"
)

// Theme holds optional branding for a board.
type Theme struct {
	LogoDataURL string `json:"logoDataUrl,omitempty"`
	Accent      string `json:"accent,omitempty"`
	Background  string `json:"background,omitempty"`
}

// Board is a fundraiser instance with 100 numbered squares.
type Board struct {
	ID                 string
	Title              string
	Subtitle           string
	TeamName           string
	PricePerSquare     float64
	PaymentLabel       string
	PaymentHandle      string
	MaxSquaresPerOrder int
	Status             BoardStatus
	ShowNamesPublicly  bool
	Theme              Theme

	// SquaresTaken is the tally kept by the stream handler. It may lag.
	SquaresTaken int

	CreatedAt string
	UpdatedAt string
}

// Active reports whether the board accepts claims. A board without a
// status is treated as active.
func (b *Board) Active() bool {
	return b.Status == "" || b.Status == BoardActive
}

// Square is one claimable unit of a board.
type Square struct {
	BoardID     string
	Number      int
	Status      SquareStatus
	DisplayName string
	ClaimID     string

	// Version is the token presented back on the next conditional write.
	Version   int64
	UpdatedAt string
}

// ID returns the canonical row key of the square.
func (s Square) ID() string {
	return keys.SquareID(s.Number)
}

// Open reports whether the square can be claimed. A missing status is open.
func (s Square) Open() bool {
	return s.Status == "" || s.Status == SquareOpen
}

// Claim records one participant reserving one or more squares together.
type Claim struct {
	BoardID     string      `json:"boardId"`
	ID          string      `json:"claimId"`
	DisplayName string      `json:"displayName"`
	SquareIDs   []string    `json:"squares"`
	Status      ClaimStatus `json:"status"`
	Version     int64       `json:"-"`
	CreatedAt   string      `json:"createdAt"`
	UpdatedAt   string      `json:"updatedAt"`
}

// Reservation is what gets written onto each square of a claim.
type Reservation struct {
	ClaimID     string
	DisplayName string
}

// PublicBoard is the board metadata exposed to participants.
type PublicBoard struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title"`
	Subtitle           string      `json:"subtitle"`
	TeamName           string      `json:"teamName"`
	PricePerSquare     float64     `json:"pricePerSquare"`
	MaxSquaresPerOrder int         `json:"maxSquaresPerOrder"`
	PaymentLabel       string      `json:"paymentLabel"`
	PaymentHandle      string      `json:"paymentHandle"`
	ShowNamesPublicly  bool        `json:"showNamesPublicly"`
	Status             BoardStatus `json:"status"`
	Theme              Theme       `json:"theme"`
	SquaresTaken       int         `json:"squaresTaken"`
}

// SquareView is the public projection of a square. It never carries the
// claim id.
type SquareView struct {
	ID          string       `json:"id"`
	Number      int          `json:"squareNumber"`
	Row         int          `json:"row"`
	Col         int          `json:"col"`
	Status      SquareStatus `json:"status"`
	DisplayName string       `json:"displayName"`
}

// BoardView is a board with its squares in row-major order. When the board's
// showNamesPublicly is false, the display names of taken squares are
// omitted (empty) rather than missing from the store.
type BoardView struct {
	Board   PublicBoard  `json:"board"`
	Squares []SquareView `json:"squares"`
}
