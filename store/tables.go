package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key attribute names shared by the tables.
const (
	AttrPK       = "pk"
	AttrBoardID  = "board_id"
	AttrSquareID = "square_id"
	AttrClaimID  = "claim_id"
)

// tableCreateTimeout bounds how long EnsureTables waits for a new table.
const tableCreateTimeout = 2 * time.Minute

// TableDefinitions returns the CreateTable inputs for all tables.
// Squares has a stream with old and new images for the tally handler.
func (s *Store) TableDefinitions() []*dynamodb.CreateTableInput {
	return []*dynamodb.CreateTableInput{
		tableDefinition(s.config.BoardsTable, AttrPK, AttrBoardID, nil),
		tableDefinition(s.config.SquaresTable, AttrBoardID, AttrSquareID, &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeNewAndOldImages,
		}),
		tableDefinition(s.config.ClaimsTable, AttrBoardID, AttrClaimID, nil),
	}
}

// EnsureTables creates any missing table and waits until it is active.
// Tables that already exist are left untouched.
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, def := range s.TableDefinitions() {
		if err := s.ensureTable(ctx, def); err != nil {
			return fmt.Errorf("ensure table %s: %w", aws.ToString(def.TableName), err)
		}
	}
	return nil
}

func (s *Store) ensureTable(ctx context.Context, def *dynamodb.CreateTableInput) error {
	_, err := s.client.CreateTable(ctx, def)
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: def.TableName}, tableCreateTimeout)
}

func tableDefinition(name, hashKey, rangeKey string, stream *types.StreamSpecification) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(hashKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(rangeKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(rangeKey), KeyType: types.KeyTypeRange},
		},
		BillingMode:         types.BillingModePayPerRequest,
		StreamSpecification: stream,
	}
}
