package dynamo_test

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory stand-in for the DynamoDB operations the
// backend issues. Record tables are keyed by "id"; any other table by
// "pk" + "child_ref".
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue

	// unprocessed is the number of keys the next BatchGetItem call defers.
	unprocessed int

	batchGets    int
	queries      int
	transactions int
	lastTxnSize  []int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: make(map[string]map[string]map[string]types.AttributeValue)}
}

func str(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func itemKey(item map[string]types.AttributeValue) string {
	if id := str(item, "id"); id != "" {
		return id
	}
	return str(item, "pk") + "|" + str(item, "child_ref")
}

func (f *fakeDynamo) put(table string, item map[string]types.AttributeValue) {
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]map[string]types.AttributeValue)
	}
	f.tables[table][itemKey(item)] = item
}

func (f *fakeDynamo) get(table, key string) (map[string]types.AttributeValue, bool) {
	item, ok := f.tables[table][key]
	return item, ok
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, _ := f.get(aws.ToString(in.TableName), itemKey(in.Key))
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchGets++

	out := &dynamodb.BatchGetItemOutput{
		Responses:       make(map[string][]map[string]types.AttributeValue),
		UnprocessedKeys: make(map[string]types.KeysAndAttributes),
	}
	for table, ka := range in.RequestItems {
		for _, key := range ka.Keys {
			if f.unprocessed > 0 {
				f.unprocessed--
				deferred := out.UnprocessedKeys[table]
				deferred.Keys = append(deferred.Keys, key)
				out.UnprocessedKeys[table] = deferred
				continue
			}
			if item, ok := f.get(table, itemKey(key)); ok {
				out.Responses[table] = append(out.Responses[table], item)
			}
		}
	}
	return out, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++

	pk := str(in.ExpressionAttributeValues, ":pk")
	out := &dynamodb.QueryOutput{}
	for _, item := range f.tables[aws.ToString(in.TableName)] {
		if str(item, "pk") != pk {
			continue
		}
		if alive, ok := item["alive"].(*types.AttributeValueMemberBOOL); ok && !alive.Value {
			continue
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions++
	f.lastTxnSize = append(f.lastTxnSize, len(in.TransactItems))

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i].Code = aws.String("None")
		put := ti.Put
		if put == nil || put.ConditionExpression == nil {
			continue
		}
		current, exists := f.get(aws.ToString(put.TableName), itemKey(put.Item))
		ok := true
		switch aws.ToString(put.ConditionExpression) {
		case "attribute_not_exists(id)":
			ok = !exists
		case "#version = :expected_version":
			want := put.ExpressionAttributeValues[":expected_version"].(*types.AttributeValueMemberN).Value
			have, _ := current["version"].(*types.AttributeValueMemberN)
			ok = exists && have != nil && have.Value == want
		}
		if !ok {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		if ti.Put != nil {
			f.put(aws.ToString(ti.Put.TableName), ti.Put.Item)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// bumpVersion simulates a concurrent writer.
func (f *fakeDynamo) bumpVersion(table, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.tables[table][id]
	v, _ := strconv.ParseInt(item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
	item["version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(v+1, 10)}
}

// racingDynamo lets another writer land right before the first transaction.
type racingDynamo struct {
	*fakeDynamo
	table    string
	bumpID   string
	createID string
	raced    bool
}

func (r *racingDynamo) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if !r.raced {
		r.raced = true
		if r.bumpID != "" {
			r.bumpVersion(r.table, r.bumpID)
		}
		if r.createID != "" {
			r.mu.Lock()
			r.put(r.table, map[string]types.AttributeValue{
				"id":      &types.AttributeValueMemberS{Value: r.createID},
				"version": &types.AttributeValueMemberN{Value: "1"},
			})
			r.mu.Unlock()
		}
	}
	return r.fakeDynamo.TransactWriteItems(ctx, in, optFns...)
}
