package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/store"
)

// dynamoClient is the part of *dynamodb.Client the store uses.
type dynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type DynamoViewerStore struct {
	client    dynamoClient
	tableName string
}

func NewDynamoViewerStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoViewerStore, error) {
	client, err := newDynamoDBClient(ctx, devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(ctx, client)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(tables, tableName) {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoViewerStore{client: client, tableName: tableName}, nil
}

// GetAnnotations returns store.ErrItemNotFound when the document has never been annotated.
func (dynamoStore *DynamoViewerStore) GetAnnotations(ctx context.Context, documentId string) (models.PageAnnotations, error) {
	da, err := getItem[dynamoAnnotations](dynamoStore, ctx, documentPK(documentId), annotationsSK, true)
	if err != nil {
		return nil, err
	}

	record, err := annotationsFromDynamo(da)
	if err != nil {
		return nil, err
	}
	return record.Annotations, nil
}

func (dynamoStore *DynamoViewerStore) PutAnnotations(ctx context.Context, record models.AnnotationRecord) error {
	da, err := annotationsToDynamo(record)
	if err != nil {
		return err
	}
	return putItemIfNewer(dynamoStore, ctx, da)
}

// WriteAnnotationBatch puts each record conditionally, so a stale snapshot never replaces
// a newer one written by another instance. Stale records are skipped; records that failed
// are returned for the caller to retry.
func (dynamoStore *DynamoViewerStore) WriteAnnotationBatch(ctx context.Context, records []models.AnnotationRecord) ([]models.AnnotationRecord, error) {
	var unwritten []models.AnnotationRecord
	var errs []error
	for _, record := range records {
		err := dynamoStore.PutAnnotations(ctx, record)
		if err == nil || errors.Is(err, store.ErrConditionFailed) {
			continue
		}
		unwritten = append(unwritten, record)
		errs = append(errs, fmt.Errorf("document %s: %w", record.DocumentId, err))
	}
	return unwritten, errors.Join(errs...)
}

func (dynamoStore *DynamoViewerStore) GetLastPage(ctx context.Context, documentId string) (int, error) {
	dl, err := getItem[dynamoLastPage](dynamoStore, ctx, documentPK(documentId), lastPageSK, false)
	if err != nil {
		return 0, err
	}
	return lastPageFromDynamo(dl)
}

// PutLastPage returns store.ErrConditionFailed when a newer position is already stored.
func (dynamoStore *DynamoViewerStore) PutLastPage(ctx context.Context, record models.PositionRecord) error {
	return putItemIfNewer(dynamoStore, ctx, lastPageToDynamo(record))
}
