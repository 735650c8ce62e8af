// Package stream provides DynamoDB Streams handlers for the squares table.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
)

// Tally moves a board's count of taken squares.
type Tally interface {
	// AdjustSquaresTaken adds delta to the board's tally. It reports false
	// when the board is gone or the tally would go negative.
	AdjustSquaresTaken(ctx context.Context, boardID string, delta int) (bool, error)
}

// Handler keeps each board's squares_taken tally in step with square
// status changes.
type Handler struct {
	tally  Tally
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(tally Tally, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		tally:  tally,
		logger: logger,
	}
}

// HandleSquareChanges processes a batch of squares-table stream records.
// It is designed to be used as an AWS Lambda handler. The tally is advisory:
// redelivered records may skew it until the board is re-provisioned.
func (h *Handler) HandleSquareChanges(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord applies the tally change implied by a single record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	delta := takenDelta(record)
	if delta == 0 {
		return nil
	}

	boardID := getStringAttr(record.Change.Keys, "board_id")
	if boardID == "" {
		boardID = getStringAttr(record.Change.NewImage, "board_id")
	}
	if boardID == "" {
		boardID = getStringAttr(record.Change.OldImage, "board_id")
	}
	if boardID == "" {
		h.logger.Warn("square change without board id", "eventID", record.EventID)
		return nil
	}

	applied, err := h.tally.AdjustSquaresTaken(ctx, boardID, delta)
	if err != nil {
		return fmt.Errorf("adjust tally for board %s: %w", boardID, err)
	}
	if !applied {
		h.logger.Warn("tally not adjusted",
			"boardId", boardID,
			"delta", delta,
		)
		return nil
	}

	h.logger.Debug("tally adjusted",
		"boardId", boardID,
		"squareId", getStringAttr(record.Change.Keys, "square_id"),
		"delta", delta,
		"version", getNumberAttr(record.Change.NewImage, "version"),
	)
	return nil
}

// takenDelta is +1 when a square became taken, -1 when it stopped being
// taken and 0 otherwise.
func takenDelta(record events.DynamoDBEventRecord) int {
	wasTaken := false
	isTaken := false

	switch record.EventName {
	case "INSERT":
		isTaken = isTakenImage(record.Change.NewImage)
	case "MODIFY":
		wasTaken = isTakenImage(record.Change.OldImage)
		isTaken = isTakenImage(record.Change.NewImage)
	case "REMOVE":
		wasTaken = isTakenImage(record.Change.OldImage)
	default:
		return 0
	}

	switch {
	case isTaken && !wasTaken:
		return 1
	case wasTaken && !isTaken:
		return -1
	default:
		return 0
	}
}

func isTakenImage(image map[string]events.DynamoDBAttributeValue) bool {
	return getStringAttr(image, "status") == "taken"
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
