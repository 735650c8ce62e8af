package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AddCounter adds delta to a numeric attribute of an existing row without
// touching its version. A negative delta is applied only while the counter
// holds at least -delta, so it never goes below zero. It reports false when
// the row is missing or the floor would be crossed.
func (s *Store) AddCounter(ctx context.Context, entity Entity, attr string, delta int64) (bool, error) {
	if delta == 0 {
		return true, nil
	}

	key := entity.GetKey()
	names := map[string]string{
		"#pk":      key.attrNames()[0],
		"#counter": attr,
	}
	values := map[string]types.AttributeValue{
		":delta": &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
	}
	cond := "attribute_exists(#pk)"
	if delta < 0 {
		cond += " AND #counter >= :floor"
		values[":floor"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(-delta, 10)}
	}

	u := update{
		table:      entity.TableName(),
		key:        key,
		updateExpr: "ADD #counter :delta",
		condExpr:   cond,
		names:      names,
		values:     values,
	}
	_, err := s.client.UpdateItem(ctx, u.input())
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

