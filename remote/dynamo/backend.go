// Package dynamo implements the remote fetcher and executor on DynamoDB.
//
// Each kind lives in its own table keyed by "id". A relationship table keyed
// by a sharded parent reference lists the children of every parent, which is
// how collection rows are discovered without an inline id list.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/arbor/internal/shard"
	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/store"
)

const (
	batchGetLimit    = 100
	transactLimit    = 100
	maxBatchAttempts = 8
)

// API is the subset of the DynamoDB client used by the Backend.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Backend serves record fetches and operation flushes from DynamoDB.
type Backend struct {
	client API
	config Config
	kinds  map[string]store.Kind
	logger *slog.Logger
}

// New creates a new Backend instance.
func New(client API, config Config, logger *slog.Logger) *Backend {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		client: client,
		config: config,
		kinds:  make(map[string]store.Kind),
		logger: logger,
	}
	for _, k := range store.Kinds() {
		b.kinds[b.TableName(k)] = k
	}
	return b
}

// Open loads the shared AWS configuration and returns a Backend on a new
// DynamoDB client.
func Open(ctx context.Context, config Config, logger *slog.Logger, optFns ...func(*awsconfig.LoadOptions) error) (*Backend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), config, logger), nil
}

// TableName returns the table holding records of kind.
func (b *Backend) TableName(kind store.Kind) string {
	return b.config.TablePrefix + string(kind)
}

// KindOf returns the kind stored in table. The relationship table and
// foreign tables report false.
func (b *Backend) KindOf(table string) (store.Kind, bool) {
	kind, ok := b.kinds[table]
	return kind, ok
}

func recordKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

// Get retrieves one record with a consistent read. Soft-deleted records are
// returned like any other.
func (b *Backend) Get(ctx context.Context, kind store.Kind, id string) (*store.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedKind, kind)
	}
	result, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.TableName(kind)),
		Key:            recordKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, fmt.Errorf("%w: %s:%s", store.ErrNotFound, kind, id)
	}
	return store.DecodeItem(result.Item)
}

// FetchByIDs implements remote.Fetcher.
func (b *Backend) FetchByIDs(ctx context.Context, ptrs []store.Pointer) (store.RecordMap, error) {
	return b.batchGet(ctx, ptrs, false)
}

// batchGet reads ptrs in chunks of batchGetLimit keys, fanning the chunks out
// in parallel.
func (b *Backend) batchGet(ctx context.Context, ptrs []store.Pointer, consistent bool) (store.RecordMap, error) {
	seen := make(map[store.Pointer]bool, len(ptrs))
	unique := make([]store.Pointer, 0, len(ptrs))
	for _, p := range ptrs {
		if !p.Kind.Valid() {
			return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedKind, p.Kind)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		unique = append(unique, p)
	}

	out := store.RecordMap{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Concurrency)
	for start := 0; start < len(unique); start += batchGetLimit {
		chunk := unique[start:min(start+batchGetLimit, len(unique))]
		g.Go(func() error {
			recs, err := b.batchGetChunk(gctx, chunk, consistent)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for kind, byID := range recs {
				for _, w := range byID {
					out.Add(kind, w.Value)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) batchGetChunk(ctx context.Context, chunk []store.Pointer, consistent bool) (store.RecordMap, error) {
	request := make(map[string]types.KeysAndAttributes)
	for _, p := range chunk {
		table := b.TableName(p.Kind)
		ka := request[table]
		ka.Keys = append(ka.Keys, recordKey(p.ID))
		if consistent {
			ka.ConsistentRead = aws.Bool(true)
		}
		request[table] = ka
	}

	out := store.RecordMap{}
	for attempt := 0; len(request) > 0; attempt++ {
		if attempt >= maxBatchAttempts {
			return nil, fmt.Errorf("batch get: keys of %d tables unprocessed after %d attempts", len(request), attempt)
		}
		if attempt > 0 {
			b.logger.Debug("retrying unprocessed keys", "tables", len(request), "attempt", attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt*attempt) * 10 * time.Millisecond):
			}
		}

		result, err := b.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return nil, fmt.Errorf("batch get: %w", err)
		}
		for table, items := range result.Responses {
			kind, ok := b.kinds[table]
			if !ok {
				continue
			}
			for _, item := range items {
				rec, err := store.DecodeItem(item)
				if err != nil {
					return nil, err
				}
				out.Add(kind, rec)
			}
		}
		request = result.UnprocessedKeys
	}
	return out, nil
}

// QueryChildren implements remote.Fetcher. It lists the relationship rows of
// the parent across every shard and fetches the alive children that still
// point back at it.
func (b *Backend) QueryChildren(ctx context.Context, parentID string, kind store.Kind) (store.RecordMap, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedKind, kind)
	}
	refs, err := b.childPointers(ctx, shard.Ref(string(kind), parentID))
	if err != nil {
		return nil, err
	}
	recs, err := b.batchGet(ctx, refs, false)
	if err != nil {
		return nil, err
	}
	for _, byID := range recs {
		for id, w := range byID {
			if !w.Value.Alive || w.Value.ParentID != parentID || w.Value.ParentTable != kind {
				delete(byID, id)
			}
		}
	}
	return recs, nil
}

// childPointers queries every shard of parentRef in parallel.
func (b *Backend) childPointers(ctx context.Context, parentRef string) ([]store.Pointer, error) {
	var mu sync.Mutex
	var out []store.Pointer

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Concurrency)
	for _, pk := range shard.All(parentRef, b.config.NumShards) {
		pk := pk
		g.Go(func() error {
			values := store.AliveFilterValues()
			values[":pk"] = &types.AttributeValueMemberS{Value: pk}

			var found []store.Pointer
			paginator := dynamodb.NewQueryPaginator(b.client, &dynamodb.QueryInput{
				TableName:                 aws.String(b.config.RelationshipTable),
				KeyConditionExpression:    aws.String("pk = :pk"),
				FilterExpression:          aws.String(store.AliveFilterExpr()),
				ExpressionAttributeNames:  store.AliveFilterNames(),
				ExpressionAttributeValues: values,
			})
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(gctx)
				if err != nil {
					return fmt.Errorf("shard %s: %w", pk, err)
				}
				for _, item := range page.Items {
					if p, ok := b.unmarshalChildPointer(item); ok {
						found = append(found, p)
					}
				}
			}

			mu.Lock()
			out = append(out, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) unmarshalChildPointer(item map[string]types.AttributeValue) (store.Pointer, bool) {
	var p store.Pointer
	if v, ok := item["child_id"].(*types.AttributeValueMemberS); ok {
		p.ID = v.Value
	}
	if v, ok := item["child_kind"].(*types.AttributeValueMemberS); ok {
		p.Kind = store.Kind(v.Value)
	}
	return p, p.ID != "" && p.Kind.Valid()
}

// stagedRecord is a record being rewritten by one flush.
type stagedRecord struct {
	rec      *store.Record
	exists   bool
	expected int64
}

// write is one transaction item plus what its condition guards.
type write struct {
	ptr    store.Pointer
	item   types.TransactWriteItem
	exists bool
}

// Flush implements remote.Executor. It loads the current state of every
// record the operations address, interprets the operations in order, and
// writes the results back with optimistic version checks. Batches larger
// than one transaction are written in several transactions, so a failure
// can leave earlier chunks applied.
func (b *Backend) Flush(ctx context.Context, ops []operation.Operation, affected []store.Pointer) error {
	if len(ops) == 0 {
		return nil
	}
	order := operation.Affected(ops)
	current, err := b.batchGet(ctx, order, true)
	if err != nil {
		return err
	}

	staged := make(map[store.Pointer]*stagedRecord, len(order))
	for _, op := range ops {
		p := op.Pointer()
		st, ok := staged[p]
		if !ok {
			st = &stagedRecord{}
			if w, found := current[p.Kind][p.ID]; found && w.Value != nil {
				st.rec, st.exists, st.expected = w.Value, true, w.Value.Version
			} else if op.Command == operation.CommandSet && len(op.Path) == 0 {
				st.rec = &store.Record{ID: p.ID, Alive: true}
			} else {
				return fmt.Errorf("%w: %s:%s", store.ErrNotFound, p.Kind, p.ID)
			}
			staged[p] = st
		}
		if err := operation.Apply(st.rec, op); err != nil {
			return fmt.Errorf("apply %s: %w", op, err)
		}
	}

	b.logger.Debug("flushing operations",
		"operations", len(ops),
		"records", len(order),
		"affected", len(affected),
	)

	var groups [][]write
	for _, p := range order {
		st := staged[p]
		st.rec.ID = p.ID
		st.rec.Version = st.expected + 1
		group, err := b.recordWrites(p, st)
		if err != nil {
			return err
		}
		groups = append(groups, group)
	}

	for _, chunk := range chunkWrites(groups) {
		items := make([]types.TransactWriteItem, len(chunk))
		for i, w := range chunk {
			items[i] = w.item
		}
		_, err := b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
		if err != nil {
			return mapTransactionError(err, chunk)
		}
	}
	return nil
}

// recordWrites builds the record put and, for records with a parent, the
// relationship row put.
func (b *Backend) recordWrites(p store.Pointer, st *stagedRecord) ([]write, error) {
	item, err := st.rec.MarshalItem()
	if err != nil {
		return nil, err
	}

	put := &types.Put{
		TableName: aws.String(b.TableName(p.Kind)),
		Item:      item,
	}
	if st.exists {
		put.ConditionExpression = aws.String("#version = :expected_version")
		put.ExpressionAttributeNames = map[string]string{"#version": "version"}
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected_version": &types.AttributeValueMemberN{Value: strconv.FormatInt(st.expected, 10)},
		}
	} else {
		put.ConditionExpression = aws.String("attribute_not_exists(id)")
	}
	out := []write{{ptr: p, item: types.TransactWriteItem{Put: put}, exists: st.exists}}

	parent, ok := st.rec.Parent()
	if !ok {
		return out, nil
	}
	parentRef := shard.Ref(string(parent.Kind), parent.ID)
	childRef := shard.Ref(string(p.Kind), p.ID)
	out = append(out, write{ptr: p, item: types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(b.config.RelationshipTable),
			Item: map[string]types.AttributeValue{
				"pk":         &types.AttributeValueMemberS{Value: shard.RelationshipPK(parentRef, childRef, b.config.NumShards)},
				"child_ref":  &types.AttributeValueMemberS{Value: childRef},
				"parent_ref": &types.AttributeValueMemberS{Value: parentRef},
				"child_kind": &types.AttributeValueMemberS{Value: string(p.Kind)},
				"child_id":   &types.AttributeValueMemberS{Value: p.ID},
				"alive":      &types.AttributeValueMemberBOOL{Value: st.rec.Alive},
			},
		},
	}})
	return out, nil
}

// chunkWrites packs per-record groups into transactions of at most
// transactLimit items without splitting a group.
func chunkWrites(groups [][]write) [][]write {
	var chunks [][]write
	var cur []write
	for _, g := range groups {
		if len(cur)+len(g) > transactLimit {
			chunks = append(chunks, cur)
			cur = nil
		}
		cur = append(cur, g...)
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// mapTransactionError maps a cancelled transaction to the sentinel of the
// first failed condition.
func mapTransactionError(err error, chunk []write) error {
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" || i >= len(chunk) {
				continue
			}
			w := chunk[i]
			if w.exists {
				return fmt.Errorf("%w: %s:%s", store.ErrConcurrentModification, w.ptr.Kind, w.ptr.ID)
			}
			return fmt.Errorf("%w: %s:%s", store.ErrAlreadyExists, w.ptr.Kind, w.ptr.ID)
		}
	}
	return err
}
