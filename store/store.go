package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MaxTransactItems is the DynamoDB limit on items in one TransactWriteItems call.
const MaxTransactItems = 100

// API is the subset of *dynamodb.Client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store provides DynamoDB operations with optimistic locking.
type Store struct {
	client API
	config Config
}

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.config
}

// managed fields are written by the store and never taken from caller items.
var managedFields = map[string]bool{
	"entity_ref": true,
	"parent_ref": true,
	"version":    true,
	"created_at": true,
	"updated_at": true,
}

// update is the shape shared by UpdateItem and a transactional Update.
type update struct {
	table      string
	key        PK
	updateExpr string
	condExpr   string
	names      map[string]string
	values     map[string]types.AttributeValue
}

func (u update) input() *dynamodb.UpdateItemInput {
	in := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(u.table),
		Key:                       u.key,
		UpdateExpression:          aws.String(u.updateExpr),
		ExpressionAttributeNames:  u.names,
		ExpressionAttributeValues: nonEmptyValues(u.values),
	}
	if u.condExpr != "" {
		in.ConditionExpression = aws.String(u.condExpr)
	}
	return in
}

func (u update) transactItem() types.TransactWriteItem {
	tu := &types.Update{
		TableName:                 aws.String(u.table),
		Key:                       u.key,
		UpdateExpression:          aws.String(u.updateExpr),
		ExpressionAttributeNames:  u.names,
		ExpressionAttributeValues: nonEmptyValues(u.values),
	}
	if u.condExpr != "" {
		tu.ConditionExpression = aws.String(u.condExpr)
	}
	return types.TransactWriteItem{Update: tu}
}

// Create creates a new entity, failing if the key already exists. An entity
// implementing ParentChecker with a non-nil check is written in a
// transaction guarded by that check; every other entity is a single
// conditional put and touches no other row.
func (s *Store) Create(ctx context.Context, entity Entity, item map[string]types.AttributeValue) error {
	nowISO := time.Now().UTC().Format(time.RFC3339)

	var check *ConditionCheck
	key := entity.GetKey()
	for k, v := range key {
		item[k] = v
	}
	item["entity_ref"] = &types.AttributeValueMemberS{Value: entity.EntityRef()}
	item["version"] = &types.AttributeValueMemberN{Value: "1"}
	item["created_at"] = &types.AttributeValueMemberS{Value: nowISO}
	item["updated_at"] = &types.AttributeValueMemberS{Value: nowISO}
	if checker, ok := entity.(ParentChecker); ok {
		check = checker.ParentCheck()
		if ref := checker.ParentRef(); ref != "" {
			item["parent_ref"] = &types.AttributeValueMemberS{Value: ref}
		}
	}

	cond := aws.String("attribute_not_exists(#pk)")
	names := map[string]string{"#pk": key.attrNames()[0]}

	if check == nil {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                aws.String(entity.TableName()),
			Item:                     item,
			ConditionExpression:      cond,
			ExpressionAttributeNames: names,
		})
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrAlreadyExists
		}
		return err
	}

	// Track item indices for error mapping
	const parentCheckIndex, entityPutIndex = 0, 1
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			conditionCheckItem(*check),
			{Put: &types.Put{
				TableName:                aws.String(entity.TableName()),
				Item:                     item,
				ConditionExpression:      cond,
				ExpressionAttributeNames: names,
			}},
		},
	})
	return s.mapCreateTransactionError(err, parentCheckIndex, entityPutIndex)
}

// Get retrieves an entity by key with a strongly consistent read,
// returning ErrNotFound if missing.
func (s *Store) Get(ctx context.Context, table string, key PK) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	return s.unmarshalItem(result.Item), nil
}

// Query queries entities, following pagination until exhausted.
func (s *Store) Query(ctx context.Context, input QueryInput) ([]*Item, error) {
	queryInput := &dynamodb.QueryInput{
		TableName:                 aws.String(input.TableName),
		KeyConditionExpression:    aws.String(input.KeyConditionExpression),
		ExpressionAttributeNames:  input.ExpressionAttributeNames,
		ExpressionAttributeValues: nonEmptyValues(input.ExpressionAttributeValues),
	}

	if input.FilterExpression != "" {
		queryInput.FilterExpression = aws.String(input.FilterExpression)
	}
	if input.IndexName != "" {
		queryInput.IndexName = aws.String(input.IndexName)
	}
	if input.Limit > 0 {
		queryInput.Limit = aws.Int32(input.Limit)
	}
	if input.ScanIndexForward != nil {
		queryInput.ScanIndexForward = input.ScanIndexForward
	}
	if input.ConsistentRead {
		queryInput.ConsistentRead = aws.Bool(true)
	}

	var items []*Item
	paginator := dynamodb.NewQueryPaginator(s.client, queryInput)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			items = append(items, s.unmarshalItem(raw))
		}
	}

	return items, nil
}

// Upsert creates or replaces the attributes in item. The version is
// incremented rather than reset, so a reader holding an older version can
// never win a later conditional write.
func (s *Store) Upsert(ctx context.Context, entity Entity, item map[string]types.AttributeValue) error {
	_, err := s.client.UpdateItem(ctx, s.upsertUpdate(entity, item).input())
	return err
}

// UpsertBatch upserts up to MaxTransactItems entities atomically.
func (s *Store) UpsertBatch(ctx context.Context, entities []Entity, items []map[string]types.AttributeValue) error {
	if len(entities) != len(items) {
		return fmt.Errorf("store: %d entities but %d items", len(entities), len(items))
	}
	if len(entities) == 0 {
		return nil
	}
	if len(entities) > MaxTransactItems {
		return ErrTooManyItems
	}

	tx := make([]types.TransactWriteItem, 0, len(entities))
	for i, entity := range entities {
		tx = append(tx, s.upsertUpdate(entity, items[i]).transactItem())
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: tx,
	})
	return err
}

// Update updates an entity with optimistic locking. cond, when non-nil, is
// ANDed with the version check.
func (s *Store) Update(ctx context.Context, entity Entity, item map[string]types.AttributeValue, expectedVersion int64, cond *Condition) error {
	u := s.versionedUpdate(VersionedUpdate{
		Entity:          entity,
		Item:            item,
		ExpectedVersion: expectedVersion,
		Condition:       cond,
	})

	_, err := s.client.UpdateItem(ctx, u.input())
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return err
	}
	return nil
}

// TransactUpdate applies every update, guarded by every check, in a single
// transaction. Either all writes land or none do. A cancelled transaction
// is reported as *ConditionFailedError.
func (s *Store) TransactUpdate(ctx context.Context, checks []ConditionCheck, updates []VersionedUpdate) error {
	total := len(checks) + len(updates)
	if total == 0 {
		return nil
	}
	if total > MaxTransactItems {
		return ErrTooManyItems
	}

	items := make([]types.TransactWriteItem, 0, total)
	for _, check := range checks {
		items = append(items, conditionCheckItem(check))
	}
	for _, vu := range updates {
		items = append(items, s.versionedUpdate(vu).transactItem())
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return s.mapTransactError(err, len(checks))
}

// upsertUpdate builds an unconditional create-or-replace update.
func (s *Store) upsertUpdate(entity Entity, item map[string]types.AttributeValue) update {
	now := time.Now().UTC().Format(time.RFC3339)
	key := entity.GetKey()

	setClauses, names, values := buildSetClauses(item, key)
	names["#created_at"] = "created_at"
	names["#updated_at"] = "updated_at"
	names["#entity_ref"] = "entity_ref"
	names["#version"] = "version"
	values[":now"] = &types.AttributeValueMemberS{Value: now}
	values[":entity_ref"] = &types.AttributeValueMemberS{Value: entity.EntityRef()}
	values[":one"] = &types.AttributeValueMemberN{Value: "1"}

	setClauses = append(setClauses,
		"#created_at = if_not_exists(#created_at, :now)",
		"#updated_at = :now",
		"#entity_ref = :entity_ref",
	)
	if checker, ok := entity.(ParentChecker); ok {
		if ref := checker.ParentRef(); ref != "" {
			names["#parent_ref"] = "parent_ref"
			values[":parent_ref"] = &types.AttributeValueMemberS{Value: ref}
			setClauses = append(setClauses, "#parent_ref = :parent_ref")
		}
	}

	return update{
		table:      entity.TableName(),
		key:        key,
		updateExpr: "SET " + strings.Join(setClauses, ", ") + " ADD #version :one",
		names:      names,
		values:     values,
	}
}

// versionedUpdate builds an update conditioned on the current version.
func (s *Store) versionedUpdate(vu VersionedUpdate) update {
	now := time.Now().UTC().Format(time.RFC3339)
	key := vu.Entity.GetKey()

	setClauses, names, values := buildSetClauses(vu.Item, key)
	names["#updated_at"] = "updated_at"
	names["#version"] = "version"
	values[":updated_at"] = &types.AttributeValueMemberS{Value: now}
	values[":one"] = &types.AttributeValueMemberN{Value: "1"}
	values[":expected_version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(vu.ExpectedVersion, 10)}

	setClauses = append(setClauses, "#updated_at = :updated_at", "#version = #version + :one")

	condExpr := "#version = :expected_version"
	if vu.Condition != nil && vu.Condition.Expr != "" {
		condExpr = fmt.Sprintf("%s AND (%s)", condExpr, vu.Condition.Expr)
		for k, v := range vu.Condition.Names {
			names[k] = v
		}
		for k, v := range vu.Condition.Values {
			values[k] = v
		}
	}

	return update{
		table:      vu.Entity.TableName(),
		key:        key,
		updateExpr: "SET " + strings.Join(setClauses, ", "),
		condExpr:   condExpr,
		names:      names,
		values:     values,
	}
}

// buildSetClauses turns caller attributes into SET clauses, skipping key and
// managed attributes. Attributes are visited in sorted order.
func buildSetClauses(item map[string]types.AttributeValue, key PK) ([]string, map[string]string, map[string]types.AttributeValue) {
	attrs := make([]string, 0, len(item))
	for k := range item {
		if _, isKey := key[k]; isKey || managedFields[k] {
			continue
		}
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)

	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	setClauses := make([]string, 0, len(attrs)+4)
	for i, k := range attrs {
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		names[nameKey] = k
		values[valueKey] = item[k]
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}
	return setClauses, names, values
}

// conditionCheckItem converts a ConditionCheck into a transaction item.
func conditionCheckItem(check ConditionCheck) types.TransactWriteItem {
	names := map[string]string{}
	for k, v := range check.Names {
		names[k] = v
	}
	expr := check.ConditionExpr
	if expr == "" {
		expr = "attribute_exists(#pk)"
		names["#pk"] = check.Key.attrNames()[0]
	}

	return types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(check.TableName),
			Key:                       check.Key,
			ConditionExpression:       aws.String(expr),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: nonEmptyValues(check.Values),
		},
	}
}

// nonEmptyValues returns nil for an empty map; DynamoDB rejects empty
// ExpressionAttributeValues.
func nonEmptyValues(values map[string]types.AttributeValue) map[string]types.AttributeValue {
	if len(values) == 0 {
		return nil
	}
	return values
}

// mapCreateTransactionError maps DynamoDB transaction errors for Create operations.
// parentCheckIndex is the index of the parent check item (-1 if none).
// entityPutIndex is the index of the entity put item.
func (s *Store) mapCreateTransactionError(err error, parentCheckIndex, entityPutIndex int) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		conflicted := false
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed":
				if i == parentCheckIndex {
					return ErrParentNotFound
				}
				if i == entityPutIndex {
					return ErrAlreadyExists
				}
			case "TransactionConflict":
				conflicted = true
			}
		}
		if conflicted {
			return fmt.Errorf("%w: %w", ErrTransactionConflict, err)
		}
	}

	return err
}

// mapTransactError maps a cancelled TransactUpdate. Items before numChecks
// are condition checks; the rest are updates. A failed condition, or an
// update that lost its row to a concurrent transaction, is reported as
// *ConditionFailedError. A cancellation caused only by a concurrent
// transaction on a checked row is ErrTransactionConflict: the check itself
// did not fail.
func (s *Store) mapTransactError(err error, numChecks int) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		failed := &ConditionFailedError{}
		conflicted := false
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed":
				if i < numChecks {
					failed.Checks = append(failed.Checks, i)
				} else {
					failed.Updates = append(failed.Updates, i-numChecks)
				}
			case "TransactionConflict":
				if i < numChecks {
					conflicted = true
				} else {
					failed.Updates = append(failed.Updates, i-numChecks)
				}
			}
		}
		if len(failed.Checks) > 0 || len(failed.Updates) > 0 {
			return failed
		}
		if conflicted {
			return fmt.Errorf("%w: %w", ErrTransactionConflict, err)
		}
	}

	return err
}

// unmarshalItem converts a DynamoDB item to an Item struct.
func (s *Store) unmarshalItem(raw map[string]types.AttributeValue) *Item {
	item := &Item{Raw: raw}

	if v, ok := raw["version"].(*types.AttributeValueMemberN); ok {
		item.Version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := raw["created_at"].(*types.AttributeValueMemberS); ok {
		item.CreatedAt = v.Value
	}
	if v, ok := raw["updated_at"].(*types.AttributeValueMemberS); ok {
		item.UpdatedAt = v.Value
	}
	if v, ok := raw["entity_ref"].(*types.AttributeValueMemberS); ok {
		item.EntityRef = v.Value
	}
	if v, ok := raw["parent_ref"].(*types.AttributeValueMemberS); ok {
		item.ParentRef = v.Value
	}

	return item
}
