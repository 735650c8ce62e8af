package board

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/squares/internal/keys"
	"github.com/jacentio/squares/store"
)

// --- Entities ---

type boardEntity struct {
	table string
	id    string
}

func (b boardEntity) TableName() string  { return b.table }
func (b boardEntity) EntityRef() string  { return keys.BoardRef(b.id) }
func (b boardEntity) EntityType() string { return "board" }
func (b boardEntity) GetKey() store.PK {
	return store.PK{
		store.AttrPK:      &types.AttributeValueMemberS{Value: keys.BoardsPartition},
		store.AttrBoardID: &types.AttributeValueMemberS{Value: b.id},
	}
}

type squareEntity struct {
	table   string
	boardID string
	number  int
}

func (s squareEntity) TableName() string { return s.table }
func (s squareEntity) EntityRef() string {
	return "square#" + s.boardID + "#" + keys.SquareID(s.number)
}
func (s squareEntity) EntityType() string { return "square" }
func (s squareEntity) GetKey() store.PK {
	return store.PK{
		store.AttrBoardID:  &types.AttributeValueMemberS{Value: s.boardID},
		store.AttrSquareID: &types.AttributeValueMemberS{Value: keys.SquareID(s.number)},
	}
}

// claimEntity records its board as parent but carries no parent check: the
// claim orchestrator has read the board already, and a check here would put
// the board row into every claim's write.
type claimEntity struct {
	table   string
	boardID string
	claimID string
}

func (c claimEntity) TableName() string  { return c.table }
func (c claimEntity) EntityRef() string  { return "claim#" + c.boardID + "#" + c.claimID }
func (c claimEntity) EntityType() string { return "claim" }
func (c claimEntity) GetKey() store.PK {
	return store.PK{
		store.AttrBoardID: &types.AttributeValueMemberS{Value: c.boardID},
		store.AttrClaimID: &types.AttributeValueMemberS{Value: c.claimID},
	}
}

func (c claimEntity) ParentRef() string                  { return keys.BoardRef(c.boardID) }
func (c claimEntity) ParentCheck() *store.ConditionCheck { return nil }

// --- Records ---

type boardRecord struct {
	PK                 string  `dynamodbav:"pk"`
	BoardID            string  `dynamodbav:"board_id"`
	Title              string  `dynamodbav:"title"`
	Subtitle           string  `dynamodbav:"subtitle"`
	TeamName           string  `dynamodbav:"team_name"`
	PricePerSquare     float64 `dynamodbav:"price_per_square"`
	PaymentLabel       string  `dynamodbav:"payment_label"`
	PaymentHandle      string  `dynamodbav:"payment_handle"`
	MaxSquaresPerOrder int     `dynamodbav:"max_squares_per_order"`
	Status             string  `dynamodbav:"status"`
	ShowNamesPublicly  bool    `dynamodbav:"show_names_publicly"`
	ThemeLogoDataURL   string  `dynamodbav:"theme_logo_data_url"`
	ThemeAccent        string  `dynamodbav:"theme_accent"`
	ThemeBg            string  `dynamodbav:"theme_bg"`
	SquaresTaken       int     `dynamodbav:"squares_taken"`
	CreatedAt          string  `dynamodbav:"created_at,omitempty"`
	UpdatedAt          string  `dynamodbav:"updated_at,omitempty"`
}

type squareRecord struct {
	BoardID      string `dynamodbav:"board_id"`
	SquareID     string `dynamodbav:"square_id"`
	SquareNumber int    `dynamodbav:"square_number"`
	Status       string `dynamodbav:"status"`
	DisplayName  string `dynamodbav:"display_name"`
	ClaimID      string `dynamodbav:"claim_id"`
	UpdatedAt    string `dynamodbav:"updated_at,omitempty"`
}

type claimRecord struct {
	BoardID     string   `dynamodbav:"board_id"`
	ClaimID     string   `dynamodbav:"claim_id"`
	DisplayName string   `dynamodbav:"display_name"`
	SquareIDs   []string `dynamodbav:"square_ids"`
	Status      string   `dynamodbav:"status"`
	CreatedAt   string   `dynamodbav:"created_at,omitempty"`
	UpdatedAt   string   `dynamodbav:"updated_at,omitempty"`
}

// --- Repository ---

// DynamoRepository implements Repository on top of store.Store.
type DynamoRepository struct {
	store  *store.Store
	config store.Config
}

// NewDynamoRepository creates a repository over the store's tables.
func NewDynamoRepository(s *store.Store) *DynamoRepository {
	return &DynamoRepository{store: s, config: s.Config()}
}

func (r *DynamoRepository) board(id string) boardEntity {
	return boardEntity{table: r.config.BoardsTable, id: id}
}

func (r *DynamoRepository) square(boardID string, n int) squareEntity {
	return squareEntity{table: r.config.SquaresTable, boardID: boardID, number: n}
}

func (r *DynamoRepository) claim(boardID, claimID string) claimEntity {
	return claimEntity{table: r.config.ClaimsTable, boardID: boardID, claimID: claimID}
}

// GetBoard implements Repository.
func (r *DynamoRepository) GetBoard(ctx context.Context, boardID string) (*Board, error) {
	item, err := r.store.Get(ctx, r.config.BoardsTable, r.board(boardID).GetKey())
	if err != nil {
		return nil, err
	}
	return decodeBoard(item)
}

// PutBoard implements Repository.
func (r *DynamoRepository) PutBoard(ctx context.Context, b *Board) error {
	item, err := attributevalue.MarshalMap(encodeBoard(b))
	if err != nil {
		return fmt.Errorf("marshal board: %w", err)
	}
	return r.store.Upsert(ctx, r.board(b.ID), item)
}

// ListBoards implements Repository.
func (r *DynamoRepository) ListBoards(ctx context.Context) ([]Board, error) {
	items, err := r.store.Query(ctx, store.QueryInput{
		TableName:                r.config.BoardsTable,
		KeyConditionExpression:   "#pk = :pk",
		ExpressionAttributeNames: map[string]string{"#pk": store.AttrPK},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: keys.BoardsPartition},
		},
	})
	if err != nil {
		return nil, err
	}

	boards := make([]Board, 0, len(items))
	for _, item := range items {
		b, err := decodeBoard(item)
		if err != nil {
			return nil, err
		}
		boards = append(boards, *b)
	}
	return boards, nil
}

// ListSquares implements Repository.
func (r *DynamoRepository) ListSquares(ctx context.Context, boardID string) ([]Square, error) {
	items, err := r.store.Query(ctx, store.QueryInput{
		TableName:                r.config.SquaresTable,
		KeyConditionExpression:   "#board_id = :board_id",
		ExpressionAttributeNames: map[string]string{"#board_id": store.AttrBoardID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":board_id": &types.AttributeValueMemberS{Value: boardID},
		},
		ConsistentRead: true,
	})
	if err != nil {
		return nil, err
	}

	squares := make([]Square, 0, len(items))
	for _, item := range items {
		sq, err := decodeSquare(item)
		if err != nil {
			return nil, err
		}
		squares = append(squares, *sq)
	}
	return squares, nil
}

// GetSquare implements Repository.
func (r *DynamoRepository) GetSquare(ctx context.Context, boardID string, number int) (*Square, error) {
	item, err := r.store.Get(ctx, r.config.SquaresTable, r.square(boardID, number).GetKey())
	if err != nil {
		return nil, err
	}
	return decodeSquare(item)
}

// PutSquares implements Repository.
func (r *DynamoRepository) PutSquares(ctx context.Context, boardID string, squares []Square) error {
	entities := make([]store.Entity, 0, len(squares))
	items := make([]map[string]types.AttributeValue, 0, len(squares))
	for _, sq := range squares {
		item, err := attributevalue.MarshalMap(squareRecord{
			BoardID:      boardID,
			SquareID:     sq.ID(),
			SquareNumber: sq.Number,
			Status:       string(sq.Status),
			DisplayName:  sq.DisplayName,
			ClaimID:      sq.ClaimID,
		})
		if err != nil {
			return fmt.Errorf("marshal square %s: %w", sq.ID(), err)
		}
		entities = append(entities, r.square(boardID, sq.Number))
		items = append(items, item)
	}
	return r.store.UpsertBatch(ctx, entities, items)
}

// CreateClaim implements Repository.
func (r *DynamoRepository) CreateClaim(ctx context.Context, c *Claim) error {
	item, err := attributevalue.MarshalMap(claimRecord{
		BoardID:     c.BoardID,
		ClaimID:     c.ID,
		DisplayName: c.DisplayName,
		SquareIDs:   c.SquareIDs,
		Status:      string(c.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal claim: %w", err)
	}
	if err := r.store.Create(ctx, r.claim(c.BoardID, c.ID), item); err != nil {
		return err
	}
	c.Version = 1
	return nil
}

// GetClaim implements Repository.
func (r *DynamoRepository) GetClaim(ctx context.Context, boardID, claimID string) (*Claim, error) {
	item, err := r.store.Get(ctx, r.config.ClaimsTable, r.claim(boardID, claimID).GetKey())
	if err != nil {
		return nil, err
	}

	var rec claimRecord
	if err := attributevalue.UnmarshalMap(item.Raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal claim: %w", err)
	}
	return &Claim{
		BoardID:     rec.BoardID,
		ID:          rec.ClaimID,
		DisplayName: rec.DisplayName,
		SquareIDs:   rec.SquareIDs,
		Status:      ClaimStatus(rec.Status),
		Version:     item.Version,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}, nil
}

// UpdateClaim implements Repository.
func (r *DynamoRepository) UpdateClaim(ctx context.Context, c *Claim) error {
	squareIDs, err := attributevalue.Marshal(c.SquareIDs)
	if err != nil {
		return fmt.Errorf("marshal square ids: %w", err)
	}
	item := map[string]types.AttributeValue{
		"square_ids": squareIDs,
		"status":     &types.AttributeValueMemberS{Value: string(c.Status)},
	}
	if err := r.store.Update(ctx, r.claim(c.BoardID, c.ID), item, c.Version, nil); err != nil {
		return err
	}
	c.Version++
	return nil
}

// ReserveSquare implements Repository.
func (r *DynamoRepository) ReserveSquare(ctx context.Context, sq Square, res Reservation) error {
	return r.store.Update(ctx, r.square(sq.BoardID, sq.Number), reservationItem(res), sq.Version, squareOpenCondition())
}

// ReserveSquares implements Repository. The transaction holds only square
// rows, so claims on disjoint squares never share a row.
func (r *DynamoRepository) ReserveSquares(ctx context.Context, boardID string, squares []Square, res Reservation) error {
	item := reservationItem(res)
	updates := make([]store.VersionedUpdate, 0, len(squares))
	for _, sq := range squares {
		updates = append(updates, store.VersionedUpdate{
			Entity:          r.square(boardID, sq.Number),
			Item:            item,
			ExpectedVersion: sq.Version,
			Condition:       squareOpenCondition(),
		})
	}
	return r.store.TransactUpdate(ctx, nil, updates)
}

// AdjustSquaresTaken moves the board's squares_taken tally by delta. It
// reports false when the board is gone or the tally would go negative.
func (r *DynamoRepository) AdjustSquaresTaken(ctx context.Context, boardID string, delta int) (bool, error) {
	return r.store.AddCounter(ctx, r.board(boardID), attrSquaresTaken, int64(delta))
}

const attrSquaresTaken = "squares_taken"

func reservationItem(res Reservation) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"status":       &types.AttributeValueMemberS{Value: string(SquareTaken)},
		"display_name": &types.AttributeValueMemberS{Value: res.DisplayName},
		"claim_id":     &types.AttributeValueMemberS{Value: res.ClaimID},
	}
}

// squareOpenCondition treats a missing status as open.
func squareOpenCondition() *store.Condition {
	return &store.Condition{
		Expr:  "attribute_not_exists(#status) OR #status = :open",
		Names: map[string]string{"#status": "status"},
		Values: map[string]types.AttributeValue{
			":open": &types.AttributeValueMemberS{Value: string(SquareOpen)},
		},
	}
}

// --- Codecs ---

func encodeBoard(b *Board) boardRecord {
	return boardRecord{
		PK:                 keys.BoardsPartition,
		BoardID:            b.ID,
		Title:              b.Title,
		Subtitle:           b.Subtitle,
		TeamName:           b.TeamName,
		PricePerSquare:     b.PricePerSquare,
		PaymentLabel:       b.PaymentLabel,
		PaymentHandle:      b.PaymentHandle,
		MaxSquaresPerOrder: b.MaxSquaresPerOrder,
		Status:             string(b.Status),
		ShowNamesPublicly:  b.ShowNamesPublicly,
		ThemeLogoDataURL:   b.Theme.LogoDataURL,
		ThemeAccent:        b.Theme.Accent,
		ThemeBg:            b.Theme.Background,
		SquaresTaken:       b.SquaresTaken,
	}
}

func decodeBoard(item *store.Item) (*Board, error) {
	var rec boardRecord
	if err := attributevalue.UnmarshalMap(item.Raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal board: %w", err)
	}
	return &Board{
		ID:                 rec.BoardID,
		Title:              rec.Title,
		Subtitle:           rec.Subtitle,
		TeamName:           rec.TeamName,
		PricePerSquare:     rec.PricePerSquare,
		PaymentLabel:       rec.PaymentLabel,
		PaymentHandle:      rec.PaymentHandle,
		MaxSquaresPerOrder: rec.MaxSquaresPerOrder,
		Status:             BoardStatus(rec.Status),
		ShowNamesPublicly:  rec.ShowNamesPublicly,
		Theme: Theme{
			LogoDataURL: rec.ThemeLogoDataURL,
			Accent:      rec.ThemeAccent,
			Background:  rec.ThemeBg,
		},
		SquaresTaken: rec.SquaresTaken,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}, nil
}

// decodeSquare is the single place that tolerates rows written without a
// square_number attribute; the number is then recovered from the row key.
func decodeSquare(item *store.Item) (*Square, error) {
	var rec squareRecord
	if err := attributevalue.UnmarshalMap(item.Raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal square: %w", err)
	}

	number := rec.SquareNumber
	if number == 0 {
		n, err := keys.ParseSquareID(rec.SquareID)
		if err != nil {
			return nil, err
		}
		number = n
	}

	return &Square{
		BoardID:     rec.BoardID,
		Number:      number,
		Status:      SquareStatus(rec.Status),
		DisplayName: rec.DisplayName,
		ClaimID:     rec.ClaimID,
		Version:     item.Version,
		UpdatedAt:   item.UpdatedAt,
	}, nil
}
