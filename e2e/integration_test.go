//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/arbor/document"
	"github.com/jacentio/arbor/materialize"
	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/remote/dynamo"
	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/txn"
)

// Test configuration
const (
	// profileEnv names the shared AWS profile to run against. Empty uses the
	// default credential chain.
	profileEnv = "ARBOR_E2E_PROFILE"

	// Table names - unique per test run to avoid conflicts
	tablePrefix = "arbor-e2e-test"
)

var (
	testID  string
	dynCfg  dynamo.Config
	backend *dynamo.Backend

	ddbClient *dynamodb.Client
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	dynCfg = dynamo.Config{
		TablePrefix:       fmt.Sprintf("%s-%s-", tablePrefix, testID),
		RelationshipTable: fmt.Sprintf("%s-%s-relationships", tablePrefix, testID),
		NumShards:         4,
	}
	fmt.Printf("Test ID: %s\n", testID)

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if profile := os.Getenv(profileEnv); profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}
	ddbClient = dynamodb.NewFromConfig(cfg)

	if err := createTables(ctx); err != nil {
		fmt.Printf("Failed to create tables: %v\n", err)
		os.Exit(1)
	}
	backend = dynamo.New(ddbClient, dynCfg, nil)

	code := m.Run()

	if err := deleteTables(ctx); err != nil {
		fmt.Printf("Failed to delete tables: %v\n", err)
	}
	os.Exit(code)
}

func tableNames() []string {
	var names []string
	for _, k := range store.Kinds() {
		names = append(names, dynCfg.TablePrefix+string(k))
	}
	return append(names, dynCfg.RelationshipTable)
}

func createTables(ctx context.Context) error {
	fmt.Println("Creating test tables...")

	for _, k := range store.Kinds() {
		tableName := dynCfg.TablePrefix + string(k)
		_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(tableName),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil {
			return fmt.Errorf("create table %s: %w", tableName, err)
		}
	}

	// Relationship table (pk, child_ref)
	_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(dynCfg.RelationshipTable),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("child_ref"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("child_ref"), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create relationship table: %w", err)
	}

	for _, tableName := range tableNames() {
		waiter := dynamodb.NewTableExistsWaiter(ddbClient)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", tableName, err)
		}
	}

	fmt.Println("All tables created and active")
	return nil
}

func deleteTables(ctx context.Context) error {
	fmt.Println("Deleting test tables...")
	for _, tableName := range tableNames() {
		_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			fmt.Printf("Warning: failed to delete table %s: %v\n", tableName, err)
		}
	}
	fmt.Println("Tables deleted")
	return nil
}

// --- Helpers ---

// seedSpace writes an empty space straight through the backend.
func seedSpace(t *testing.T) string {
	t.Helper()
	id := uuid.NewString()
	fields, err := (&store.Record{ID: id, Alive: true, Name: "E2E"}).Fields()
	require.NoError(t, err)
	op := operation.Set(store.KindSpace, id, nil, fields)
	require.NoError(t, backend.Flush(context.Background(), []operation.Operation{op}, []store.Pointer{op.Pointer()}))
	return id
}

func newClient(t *testing.T, spaceID string) *document.Client {
	t.Helper()
	c, err := document.New(document.Config{
		Token: "e2e",
		Config: txn.Config{
			UserID:  "e2e-user",
			SpaceID: spaceID,
			Logger:  slog.Default(),
		},
	}, backend, backend)
	require.NoError(t, err)
	return c
}

func title(s string) map[string]any {
	return map[string]any{"title": [][]string{{s}}}
}

// --- Tests ---

func TestCreatePages_VisibleToFreshClient(t *testing.T) {
	ctx := context.Background()
	spaceID := seedSpace(t)

	idx, err := newClient(t, spaceID).Space(spaceID).CreatePages(ctx, materialize.Node{
		Type:       store.TypePage,
		Properties: title("Notes"),
		Contents: []materialize.Node{
			{Type: "header", Properties: title("Heading")},
			{Type: "text", Properties: title("Body")},
		},
	})
	require.NoError(t, err)
	page, ok := idx.Get(store.TypePage, "Notes")
	require.True(t, ok)

	fresh := newClient(t, spaceID)
	pages, err := fresh.Space(spaceID).Pages(ctx, nil)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, page.ID, pages[0].ID)
	assert.Equal(t, "Notes", pages[0].Title())

	blocks, err := fresh.Page(page.ID).Blocks(ctx, nil)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Heading", blocks[0].Title())
	assert.Equal(t, "Body", blocks[1].Title())
}

func TestCollectionRows_DiscoveredThroughRelationships(t *testing.T) {
	ctx := context.Background()
	spaceID := seedSpace(t)

	idx, err := newClient(t, spaceID).Space(spaceID).CreatePages(ctx, materialize.Node{
		Type: store.TypeCollectionViewPage,
		Collection: &materialize.CollectionSpec{
			Name: "Tasks",
			Schema: []materialize.Property{
				{Name: "Name", Type: "title"},
				{Name: "Done", Type: "checkbox"},
			},
		},
		Views: []materialize.ViewSpec{{Type: "table", Name: "All"}},
		Rows: []materialize.Node{
			{Type: store.TypePage, Properties: title("one")},
			{Type: store.TypePage, Properties: title("two")},
		},
	})
	require.NoError(t, err)
	coll, ok := idx.Get(materialize.GroupCollection, "Tasks")
	require.True(t, ok)

	rows, err := newClient(t, spaceID).Collection(coll.ID).Rows(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	titles := []string{rows[0].Title(), rows[1].Title()}
	assert.ElementsMatch(t, []string{"one", "two"}, titles)
}

func TestConcurrentClients_BothEditsLand(t *testing.T) {
	ctx := context.Background()
	spaceID := seedSpace(t)

	a := newClient(t, spaceID)
	b := newClient(t, spaceID)
	_, err := a.Space(spaceID).Get(ctx)
	require.NoError(t, err)
	_, err = b.Space(spaceID).Get(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Space(spaceID).Update(ctx, store.Patch{"name": "Renamed"}))
	require.NoError(t, b.Space(spaceID).Update(ctx, store.Patch{"icon": "🌲"}))

	got, err := backend.Get(ctx, store.KindSpace, spaceID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title())
	assert.Equal(t, "🌲", got.Extra["icon"])
	assert.Equal(t, int64(3), got.Version)
}

func TestDeleteBlock_SoftDeletesAndUnlinks(t *testing.T) {
	ctx := context.Background()
	spaceID := seedSpace(t)

	c := newClient(t, spaceID)
	idx, err := c.Space(spaceID).CreatePages(ctx, materialize.Node{
		Type:       store.TypePage,
		Properties: title("Doc"),
		Contents:   []materialize.Node{{Type: "text", Properties: title("gone")}},
	})
	require.NoError(t, err)
	page, _ := idx.Get(store.TypePage, "Doc")
	require.Len(t, idx.Entries(), 2)

	var blockID string
	for _, e := range idx.Entries() {
		if e.Pointer.ID != page.ID {
			blockID = e.Pointer.ID
		}
	}
	err = c.Block(blockID).Delete(ctx)
	require.NoError(t, err)

	rec, err := backend.Get(ctx, store.KindBlock, blockID)
	require.NoError(t, err)
	assert.False(t, rec.Alive)

	parent, err := backend.Get(ctx, store.KindBlock, page.ID)
	require.NoError(t, err)
	assert.Empty(t, parent.Content)
}
