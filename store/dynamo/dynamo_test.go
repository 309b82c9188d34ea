package dynamo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/store"
)

// fakeClient keeps one item per PK and enforces the Updated condition like DynamoDB does.
type fakeClient struct {
	mu      sync.Mutex
	items   map[string]dynamoAnnotations
	failPKs map[string]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: map[string]dynamoAnnotations{}, failPKs: map[string]error{}}
}

func (c *fakeClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pk := params.Key["PK"].(*types.AttributeValueMemberS).Value
	item, ok := c.items[pk]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: av}, nil
}

func (c *fakeClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var item dynamoAnnotations
	if err := attributevalue.UnmarshalMap(params.Item, &item); err != nil {
		return nil, err
	}
	if err := c.failPKs[item.PK]; err != nil {
		return nil, err
	}
	if aws.ToString(params.ConditionExpression) == "" {
		return nil, errors.New("put without condition")
	}
	if cur, ok := c.items[item.PK]; ok && cur.Updated > item.Updated {
		return nil, &types.ConditionalCheckFailedException{}
	}
	c.items[item.PK] = item
	return &dynamodb.PutItemOutput{}, nil
}

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func annotated(documentId string, page int, updated time.Time) models.AnnotationRecord {
	return models.AnnotationRecord{
		DocumentId: documentId,
		Annotations: models.PageAnnotations{page: {{
			Points: []models.Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
			Tool:   models.ToolPen,
			Color:  "#000000",
			Width:  3,
		}}},
		Updated: updated,
	}
}

func TestWriteAnnotationBatch_StaleSnapshotDoesNotOverwriteNewer(t *testing.T) {
	client := newFakeClient()
	s := &DynamoViewerStore{client: client, tableName: "Folio"}
	ctx := context.Background()

	require.NoError(t, s.PutAnnotations(ctx, annotated("doc1", 5, t0.Add(time.Minute))))

	unwritten, err := s.WriteAnnotationBatch(ctx, []models.AnnotationRecord{
		annotated("doc1", 1, t0),
		annotated("doc2", 2, t0),
	})
	require.NoError(t, err)
	assert.Empty(t, unwritten)

	got, err := s.GetAnnotations(ctx, "doc1")
	require.NoError(t, err)
	assert.Contains(t, got, 5)
	assert.NotContains(t, got, 1)

	got, err = s.GetAnnotations(ctx, "doc2")
	require.NoError(t, err)
	assert.Contains(t, got, 2)
}

func TestWriteAnnotationBatch_ReturnsFailedRecords(t *testing.T) {
	client := newFakeClient()
	client.failPKs["DOC#doc2"] = errors.New("throughput exceeded")
	s := &DynamoViewerStore{client: client, tableName: "Folio"}

	failed := annotated("doc2", 1, t0)
	unwritten, err := s.WriteAnnotationBatch(context.Background(), []models.AnnotationRecord{
		annotated("doc1", 1, t0),
		failed,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "doc2")
	assert.Equal(t, []models.AnnotationRecord{failed}, unwritten)
}

func TestGetAnnotations_NeverAnnotated(t *testing.T) {
	s := &DynamoViewerStore{client: newFakeClient(), tableName: "Folio"}

	_, err := s.GetAnnotations(context.Background(), "doc1")
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}
