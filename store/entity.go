package store

import (
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// attrNames returns the key attribute names in a stable order.
func (pk PK) attrNames() []string {
	names := make([]string, 0, len(pk))
	for k := range pk {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Entity is the base interface for all storable types.
type Entity interface {
	// TableName returns the DynamoDB table name for this entity type.
	TableName() string

	// GetKey returns the primary key for this entity.
	GetKey() PK

	// EntityRef returns the type-qualified reference (e.g., "square#b1#007").
	EntityRef() string

	// EntityType returns the entity type name (e.g., "square").
	EntityType() string
}

// ParentChecker is implemented by entities that may only be created while
// their parent exists.
type ParentChecker interface {
	// ParentCheck returns the condition check for parent validation.
	// Returns nil when parent validation should be skipped.
	ParentCheck() *ConditionCheck

	// ParentRef returns the parent's entity reference (e.g., "board#b1").
	ParentRef() string
}

// ConditionCheck defines a guard evaluated inside a transaction.
type ConditionCheck struct {
	TableName string
	Key       PK

	// ConditionExpr is an optional custom condition expression.
	// If empty, the check asserts that the item exists.
	ConditionExpr string

	// Names and Values carry placeholders used by ConditionExpr.
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// Condition is an extra condition ANDed onto a conditional write.
type Condition struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// VersionedUpdate is a single optimistic update inside a transaction.
type VersionedUpdate struct {
	Entity          Entity
	Item            map[string]types.AttributeValue
	ExpectedVersion int64

	// Condition is optional and ANDed with the version check.
	Condition *Condition
}

// Item represents a retrieved DynamoDB item with common fields.
type Item struct {
	// Raw is the raw DynamoDB item.
	Raw map[string]types.AttributeValue

	// Version is the optimistic lock version.
	Version int64

	// CreatedAt is the RFC 3339 creation timestamp.
	CreatedAt string

	// UpdatedAt is the RFC 3339 last update timestamp.
	UpdatedAt string

	// EntityRef is the type-qualified entity reference.
	EntityRef string

	// ParentRef is the parent's entity reference (empty for root entities).
	ParentRef string
}

// QueryInput defines parameters for querying entities.
type QueryInput struct {
	// TableName is the DynamoDB table to query.
	TableName string

	// IndexName is the optional GSI/LSI to query.
	IndexName string

	// KeyConditionExpression is the DynamoDB key condition.
	KeyConditionExpression string

	// FilterExpression is an optional filter.
	FilterExpression string

	// ExpressionAttributeNames maps expression attribute name placeholders.
	ExpressionAttributeNames map[string]string

	// ExpressionAttributeValues maps expression attribute value placeholders.
	ExpressionAttributeValues map[string]types.AttributeValue

	// Limit is the page size (0 = service default).
	Limit int32

	// ScanIndexForward determines sort order (true = ascending, false = descending).
	ScanIndexForward *bool

	// ConsistentRead requests strongly consistent reads.
	ConsistentRead bool
}
