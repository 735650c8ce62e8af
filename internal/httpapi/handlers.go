package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jacentio/squares/board"
	"github.com/jacentio/squares/internal/keys"
)

// Handler serves the board, claim and seed endpoints.
type Handler struct {
	reader      *board.Reader
	claimer     *board.Claimer
	provisioner *board.Provisioner
	logger      *slog.Logger
}

// NewHandler creates a Handler. logger may be nil.
func NewHandler(reader *board.Reader, claimer *board.Claimer, provisioner *board.Provisioner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		reader:      reader,
		claimer:     claimer,
		provisioner: provisioner,
		logger:      logger,
	}
}

type createBoardRequest struct {
	BoardID            string    `json:"boardId"`
	Title              string    `json:"title"`
	Subtitle           string    `json:"subtitle"`
	TeamName           string    `json:"teamName"`
	PricePerSquare     *float64  `json:"pricePerSquare"`
	Price              *float64  `json:"price"`
	PaymentLabel       string    `json:"paymentLabel"`
	PaymentHandle      string    `json:"paymentHandle"`
	MaxSquaresPerOrder *int      `json:"maxSquaresPerOrder"`
	Status             string    `json:"status"`
	ShowNamesPublicly  *FlexBool `json:"showNamesPublicly"`
	ThemeLogoDataURL   string    `json:"themeLogoDataUrl"`
	ThemeAccent        string    `json:"themeAccent"`
	ThemeBg            string    `json:"themeBg"`
}

func (req createBoardRequest) input() board.ProvisionInput {
	in := board.ProvisionInput{
		BoardID:            req.BoardID,
		Title:              req.Title,
		Subtitle:           req.Subtitle,
		TeamName:           req.TeamName,
		PricePerSquare:     req.PricePerSquare,
		PaymentLabel:       req.PaymentLabel,
		PaymentHandle:      req.PaymentHandle,
		MaxSquaresPerOrder: req.MaxSquaresPerOrder,
		Status:             board.BoardStatus(req.Status),
		Theme: board.Theme{
			LogoDataURL: req.ThemeLogoDataURL,
			Accent:      req.ThemeAccent,
			Background:  req.ThemeBg,
		},
	}
	if in.PricePerSquare == nil {
		in.PricePerSquare = req.Price
	}
	if req.ShowNamesPublicly != nil {
		show := bool(*req.ShowNamesPublicly)
		in.ShowNamesPublicly = &show
	}
	return in
}

type createBoardResponse struct {
	OK      bool   `json:"ok"`
	BoardID string `json:"boardId"`
	URLPath string `json:"urlPath"`
}

// CreateBoard handles POST /board.
func (h *Handler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	var req createBoardRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	id, err := h.provisioner.Provision(r.Context(), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, createBoardResponse{
		OK:      true,
		BoardID: id,
		URLPath: "/boardId-" + id,
	})
}

type boardResponse struct {
	OK bool `json:"ok"`
	*board.BoardView
}

// GetBoard handles GET /board/{boardId}.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	view, err := h.reader.GetBoard(r.Context(), chi.URLParam(r, "boardId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardResponse{OK: true, BoardView: view})
}

type claimRequest struct {
	BoardID     string      `json:"boardId"`
	DisplayName string      `json:"displayName"`
	Squares     []SquareRef `json:"squares"`
}

type claimResponse struct {
	OK bool `json:"ok"`
	*board.ClaimResult
}

// Claim handles POST /claim.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	squares := make([]string, len(req.Squares))
	for i, s := range req.Squares {
		squares[i] = string(s)
	}

	res, err := h.claimer.Claim(r.Context(), board.ClaimRequest{
		BoardID:     req.BoardID,
		DisplayName: req.DisplayName,
		Squares:     squares,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{OK: true, ClaimResult: res})
}

type claimRecordResponse struct {
	OK    bool         `json:"ok"`
	Claim *board.Claim `json:"claim"`
}

// GetClaim handles GET /board/{boardId}/claims/{claimId}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.reader.GetClaim(r.Context(), chi.URLParam(r, "boardId"), chi.URLParam(r, "claimId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimRecordResponse{OK: true, Claim: c})
}

type seedResponse struct {
	OK            bool   `json:"ok"`
	BoardID       string `json:"boardId"`
	SeededSquares int    `json:"seededSquares"`
}

// Seed handles GET /seed and GET /seed/{boardId}.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	id, err := h.provisioner.Seed(r.Context(), chi.URLParam(r, "boardId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seedResponse{
		OK:            true,
		BoardID:       id,
		SeededSquares: keys.MaxSquare,
	})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "mode": h.claimer.Mode()})
}

// fail writes err and logs it when it is not the caller's fault.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if board.Outcome(err) == "store_error" {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, err)
}

func writeBadBody(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:  errBadBody.Error(),
		Detail: strings.TrimPrefix(err.Error(), errBadBody.Error()+": "),
	})
}
