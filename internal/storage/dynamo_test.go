package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo keeps items in a map keyed by storage_key.
type fakeDynamo struct {
	items  map[string]map[string]types.AttributeValue
	tables []string
	err    error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyString(key map[string]types.AttributeValue) string {
	if s, ok := key["storage_key"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tables = append(f.tables, *in.TableName)
	return &dynamodb.GetItemOutput{Item: f.items[keyString(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tables = append(f.tables, *in.TableName)
	f.items[keyString(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tables = append(f.tables, *in.TableName)
	delete(f.items, keyString(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoStorage(t *testing.T) {
	fake := newFakeDynamo()
	s := NewDynamoStorage(fake, "client-storage")

	exerciseStorage(t, s)

	for _, table := range fake.tables {
		assert.Equal(t, "client-storage", table)
	}
}

func TestDynamoStorage_Error(t *testing.T) {
	fake := newFakeDynamo()
	fake.err = errors.New("throttled")
	s := NewDynamoStorage(fake, "client-storage")

	_, _, err := s.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "throttled")
	assert.Error(t, s.Set(context.Background(), "k", "v"))
	assert.Error(t, s.Remove(context.Background(), "k"))
}

func TestOpenDynamoStorage_RequiresTable(t *testing.T) {
	_, err := OpenDynamoStorage(context.Background(), "")
	require.Error(t, err)
}
