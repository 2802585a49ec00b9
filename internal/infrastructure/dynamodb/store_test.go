package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable is an in-memory stand-in for the DynamoDB API calls the store makes
type fakeTable struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["key"].(*types.AttributeValueMemberS).Value
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	k := keyOf(in.Key)
	it, ok := f.items[k]
	if !ok {
		it = map[string]types.AttributeValue{"key": in.Key["key"]}
		f.items[k] = it
	}

	var n int64
	if current, ok := it["count"].(*types.AttributeValueMemberN); ok {
		n, _ = strconv.ParseInt(current.Value, 10, 64)
	}
	n++
	counter := &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
	it["count"] = counter

	return &dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{"count": counter},
	}, nil
}

func (f *fakeTable) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, f.err
}

func newTestStore(t *testing.T) (*Store, *fakeTable, *time.Time) {
	t.Helper()

	table := newFakeTable()
	store, err := New(table, "webcache")
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	return store, table, &now
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		client  API
		table   string
		wantErr bool
	}{
		{name: "nil client returns error", client: nil, table: "webcache", wantErr: true},
		{name: "empty table returns error", client: newFakeTable(), table: "", wantErr: true},
		{name: "valid", client: newFakeTable(), table: "webcache"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.client, tt.table)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, store)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.table, store.table)
		})
	}
}

func TestStore_SetGetExpiry(t *testing.T) {
	store, _, now := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "cache:a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetWithExpiry(ctx, "cache:a", []byte("HELLO"), 10*time.Second))

	value, found, err := store.Get(ctx, "cache:a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("HELLO"), value)

	*now = now.Add(10 * time.Second)
	_, found, err = store.Get(ctx, "cache:a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_EmptyContent(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithExpiry(ctx, "cache:empty", []byte{}, 10*time.Second))

	value, found, err := store.Get(ctx, "cache:empty")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, value)
}

func TestStore_Incr(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := store.Incr(ctx, "count:a")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	value, found, err := store.Get(ctx, "count:a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "3", string(value))
}

func TestStore_ClientErrors(t *testing.T) {
	store, table, _ := newTestStore(t)
	table.err = errors.New("connection reset")
	ctx := context.Background()

	_, _, err := store.Get(ctx, "cache:a")
	assert.ErrorContains(t, err, "dynamodb get failed")

	err = store.SetWithExpiry(ctx, "cache:a", []byte("x"), time.Second)
	assert.ErrorContains(t, err, "dynamodb put failed")

	_, err = store.Incr(ctx, "count:a")
	assert.ErrorContains(t, err, "dynamodb update failed")

	err = store.Ping(ctx)
	assert.ErrorContains(t, err, "dynamodb describe table failed")
}
