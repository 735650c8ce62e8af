package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type rowEntity struct {
	table string
	id    string
}

func (r rowEntity) TableName() string  { return r.table }
func (r rowEntity) EntityRef() string  { return "row#" + r.id }
func (r rowEntity) EntityType() string { return "row" }
func (r rowEntity) GetKey() PK {
	return PK{
		"board_id":  &types.AttributeValueMemberS{Value: "b1"},
		"square_id": &types.AttributeValueMemberS{Value: r.id},
	}
}

type childEntity struct {
	rowEntity
	parent string
}

func (c childEntity) ParentRef() string { return "board#" + c.parent }
func (c childEntity) ParentCheck() *ConditionCheck {
	return &ConditionCheck{
		TableName: "Boards",
		Key:       PK{"pk": &types.AttributeValueMemberS{Value: "BOARD"}},
	}
}

// --- Config ---

func TestConfigValidate_FillsDefaults(t *testing.T) {
	cfg := Config{SquaresTable: "custom"}
	cfg.validate()

	if cfg.BoardsTable != "Boards" {
		t.Errorf("expected BoardsTable 'Boards', got %q", cfg.BoardsTable)
	}
	if cfg.SquaresTable != "custom" {
		t.Errorf("expected SquaresTable 'custom', got %q", cfg.SquaresTable)
	}
	if cfg.ClaimsTable != "Claims" {
		t.Errorf("expected ClaimsTable 'Claims', got %q", cfg.ClaimsTable)
	}
}

// --- PK ---

func TestPKAttrNames_Sorted(t *testing.T) {
	names := rowEntity{id: "001"}.GetKey().attrNames()
	if len(names) != 2 || names[0] != "board_id" || names[1] != "square_id" {
		t.Errorf("expected [board_id square_id], got %v", names)
	}
}

// --- buildSetClauses ---

func TestBuildSetClauses_SkipsKeyAndManaged(t *testing.T) {
	key := rowEntity{id: "001"}.GetKey()
	item := map[string]types.AttributeValue{
		"status":       &types.AttributeValueMemberS{Value: "taken"},
		"display_name": &types.AttributeValueMemberS{Value: "Ann"},
		"board_id":     &types.AttributeValueMemberS{Value: "b1"},
		"square_id":    &types.AttributeValueMemberS{Value: "001"},
		"version":      &types.AttributeValueMemberN{Value: "9"},
		"created_at":   &types.AttributeValueMemberS{Value: "x"},
	}

	clauses, names, values := buildSetClauses(item, key)

	if len(clauses) != 2 {
		t.Fatalf("expected 2 clauses, got %v", clauses)
	}
	// Sorted: display_name before status.
	if names["#attr0"] != "display_name" || names["#attr1"] != "status" {
		t.Errorf("unexpected names %v", names)
	}
	if clauses[0] != "#attr0 = :val0" || clauses[1] != "#attr1 = :val1" {
		t.Errorf("unexpected clauses %v", clauses)
	}
	if v, ok := values[":val1"].(*types.AttributeValueMemberS); !ok || v.Value != "taken" {
		t.Errorf("expected :val1 = taken, got %v", values[":val1"])
	}
}

func TestBuildSetClauses_Empty(t *testing.T) {
	clauses, names, values := buildSetClauses(nil, PK{})
	if len(clauses) != 0 || len(names) != 0 || len(values) != 0 {
		t.Errorf("expected empty results, got %v %v %v", clauses, names, values)
	}
}

// --- versionedUpdate ---

func TestVersionedUpdate_Expression(t *testing.T) {
	s := New(nil, DefaultConfig())
	u := s.versionedUpdate(VersionedUpdate{
		Entity:          rowEntity{table: "Squares", id: "007"},
		Item:            map[string]types.AttributeValue{"status": &types.AttributeValueMemberS{Value: "taken"}},
		ExpectedVersion: 3,
		Condition: &Condition{
			Expr:   "#status = :open",
			Names:  map[string]string{"#status": "status"},
			Values: map[string]types.AttributeValue{":open": &types.AttributeValueMemberS{Value: "open"}},
		},
	})

	if u.table != "Squares" {
		t.Errorf("expected table Squares, got %q", u.table)
	}
	want := "SET #attr0 = :val0, #updated_at = :updated_at, #version = #version + :one"
	if u.updateExpr != want {
		t.Errorf("updateExpr = %q, want %q", u.updateExpr, want)
	}
	if u.condExpr != "#version = :expected_version AND (#status = :open)" {
		t.Errorf("unexpected condExpr %q", u.condExpr)
	}
	if v := u.values[":expected_version"].(*types.AttributeValueMemberN).Value; v != "3" {
		t.Errorf("expected version 3, got %s", v)
	}
	if u.names["#status"] != "status" {
		t.Error("condition names not merged")
	}
	if _, ok := u.values[":open"]; !ok {
		t.Error("condition values not merged")
	}
}

func TestVersionedUpdate_NoCondition(t *testing.T) {
	s := New(nil, DefaultConfig())
	u := s.versionedUpdate(VersionedUpdate{
		Entity:          rowEntity{table: "Claims", id: "c1"},
		ExpectedVersion: 1,
	})
	if u.condExpr != "#version = :expected_version" {
		t.Errorf("unexpected condExpr %q", u.condExpr)
	}
}

// --- upsertUpdate ---

func TestUpsertUpdate_BumpsVersion(t *testing.T) {
	s := New(nil, DefaultConfig())
	u := s.upsertUpdate(childEntity{rowEntity: rowEntity{table: "Squares", id: "001"}, parent: "b1"},
		map[string]types.AttributeValue{"status": &types.AttributeValueMemberS{Value: "open"}})

	if !strings.HasSuffix(u.updateExpr, " ADD #version :one") {
		t.Errorf("expected version ADD, got %q", u.updateExpr)
	}
	if !strings.Contains(u.updateExpr, "#created_at = if_not_exists(#created_at, :now)") {
		t.Errorf("expected created_at preserved, got %q", u.updateExpr)
	}
	if !strings.Contains(u.updateExpr, "#parent_ref = :parent_ref") {
		t.Errorf("expected parent_ref set, got %q", u.updateExpr)
	}
	if u.condExpr != "" {
		t.Errorf("upsert must be unconditional, got %q", u.condExpr)
	}
	if v := u.values[":parent_ref"].(*types.AttributeValueMemberS).Value; v != "board#b1" {
		t.Errorf("expected parent ref board#b1, got %s", v)
	}
}

// --- conditionCheckItem ---

func TestConditionCheckItem_DefaultExists(t *testing.T) {
	item := conditionCheckItem(ConditionCheck{
		TableName: "Boards",
		Key:       PK{"pk": &types.AttributeValueMemberS{Value: "BOARD"}},
	})
	cc := item.ConditionCheck
	if cc == nil {
		t.Fatal("expected ConditionCheck")
	}
	if aws.ToString(cc.ConditionExpression) != "attribute_exists(#pk)" {
		t.Errorf("unexpected expr %q", aws.ToString(cc.ConditionExpression))
	}
	if cc.ExpressionAttributeNames["#pk"] != "pk" {
		t.Errorf("expected #pk -> pk, got %v", cc.ExpressionAttributeNames)
	}
	if cc.ExpressionAttributeValues != nil {
		t.Errorf("expected nil values, got %v", cc.ExpressionAttributeValues)
	}
}

func TestConditionCheckItem_Custom(t *testing.T) {
	item := conditionCheckItem(ConditionCheck{
		TableName:     "Boards",
		Key:           PK{"pk": &types.AttributeValueMemberS{Value: "BOARD"}},
		ConditionExpr: "#status = :active",
		Names:         map[string]string{"#status": "status"},
		Values:        map[string]types.AttributeValue{":active": &types.AttributeValueMemberS{Value: "active"}},
	})
	cc := item.ConditionCheck
	if aws.ToString(cc.ConditionExpression) != "#status = :active" {
		t.Errorf("unexpected expr %q", aws.ToString(cc.ConditionExpression))
	}
	if _, ok := cc.ExpressionAttributeNames["#pk"]; ok {
		t.Error("custom check must not add #pk")
	}
}

// --- error mapping ---

func canceled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		if c != "" {
			reasons[i].Code = aws.String(c)
		}
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func TestMapCreateTransactionError(t *testing.T) {
	s := &Store{}
	other := errors.New("network")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"parent failed", canceled("ConditionalCheckFailed", "None"), ErrParentNotFound},
		{"already exists", canceled("None", "ConditionalCheckFailed"), ErrAlreadyExists},
		{"conflict", canceled("TransactionConflict", "None"), ErrTransactionConflict},
		{"failure wins over conflict", canceled("TransactionConflict", "ConditionalCheckFailed"), ErrAlreadyExists},
		{"unrelated cancel", canceled("None", "ThrottlingError"), nil},
		{"other error", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.mapCreateTransactionError(tt.err, 0, 1)
			if tt.name == "unrelated cancel" {
				var txErr *types.TransactionCanceledException
				if !errors.As(got, &txErr) {
					t.Errorf("expected original cancel error, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapTransactError_Indexes(t *testing.T) {
	s := &Store{}
	err := s.mapTransactError(canceled("None", "ConditionalCheckFailed", "None", "TransactionConflict"), 1)

	var failed *ConditionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected *ConditionFailedError, got %T", err)
	}
	if len(failed.Checks) != 0 {
		t.Errorf("expected no failed checks, got %v", failed.Checks)
	}
	if len(failed.Updates) != 2 || failed.Updates[0] != 0 || failed.Updates[1] != 2 {
		t.Errorf("expected updates [0 2], got %v", failed.Updates)
	}
	if !errors.Is(err, ErrConcurrentModification) {
		t.Error("expected ErrConcurrentModification")
	}
}

func TestMapTransactError_CheckTakesPrecedence(t *testing.T) {
	s := &Store{}
	err := s.mapTransactError(canceled("ConditionalCheckFailed", "ConditionalCheckFailed"), 1)
	if !errors.Is(err, ErrParentNotFound) {
		t.Errorf("expected ErrParentNotFound, got %v", err)
	}
}

func TestMapTransactError_ConflictOnCheck(t *testing.T) {
	s := &Store{}
	err := s.mapTransactError(canceled("TransactionConflict", "None", "None"), 1)
	if !errors.Is(err, ErrTransactionConflict) {
		t.Fatalf("expected ErrTransactionConflict, got %v", err)
	}
	if errors.Is(err, ErrParentNotFound) || errors.Is(err, ErrConcurrentModification) {
		t.Errorf("conflict must not map to a condition failure, got %v", err)
	}
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		t.Error("expected the cancellation to stay wrapped")
	}

	// A failed update still wins: the caller learns which row it lost.
	err = s.mapTransactError(canceled("TransactionConflict", "ConditionalCheckFailed"), 1)
	var failed *ConditionFailedError
	if !errors.As(err, &failed) || len(failed.Checks) != 0 || len(failed.Updates) != 1 {
		t.Errorf("expected update 0 failed, got %v", err)
	}
}

func TestMapTransactError_Passthrough(t *testing.T) {
	s := &Store{}
	if err := s.mapTransactError(nil, 0); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	orig := canceled("ThrottlingError")
	if err := s.mapTransactError(orig, 0); err != orig {
		t.Errorf("expected original error, got %v", err)
	}
}

// --- unmarshalItem ---

func TestUnmarshalItem_Full(t *testing.T) {
	s := &Store{}
	raw := map[string]types.AttributeValue{
		"board_id":   &types.AttributeValueMemberS{Value: "b1"},
		"version":    &types.AttributeValueMemberN{Value: "5"},
		"created_at": &types.AttributeValueMemberS{Value: "2024-01-01T00:00:00Z"},
		"updated_at": &types.AttributeValueMemberS{Value: "2024-01-02T00:00:00Z"},
		"entity_ref": &types.AttributeValueMemberS{Value: "square#b1#007"},
		"parent_ref": &types.AttributeValueMemberS{Value: "board#b1"},
	}

	item := s.unmarshalItem(raw)

	if item.Version != 5 {
		t.Errorf("expected Version 5, got %d", item.Version)
	}
	if item.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Errorf("unexpected CreatedAt %q", item.CreatedAt)
	}
	if item.UpdatedAt != "2024-01-02T00:00:00Z" {
		t.Errorf("unexpected UpdatedAt %q", item.UpdatedAt)
	}
	if item.EntityRef != "square#b1#007" {
		t.Errorf("unexpected EntityRef %q", item.EntityRef)
	}
	if item.ParentRef != "board#b1" {
		t.Errorf("unexpected ParentRef %q", item.ParentRef)
	}
}

func TestUnmarshalItem_Minimal(t *testing.T) {
	s := &Store{}
	item := s.unmarshalItem(map[string]types.AttributeValue{
		"board_id": &types.AttributeValueMemberS{Value: "b1"},
		"version":  &types.AttributeValueMemberS{Value: "not-a-number"},
	})
	if item.Version != 0 || item.CreatedAt != "" || item.EntityRef != "" {
		t.Errorf("expected zero fields, got %+v", item)
	}
}

func TestNonEmptyValues(t *testing.T) {
	if nonEmptyValues(map[string]types.AttributeValue{}) != nil {
		t.Error("expected nil for empty map")
	}
	v := map[string]types.AttributeValue{":a": &types.AttributeValueMemberS{Value: "x"}}
	if len(nonEmptyValues(v)) != 1 {
		t.Error("expected map returned unchanged")
	}
}
