package dynamo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/zlnvch/folio/models"
)

const (
	documentPrefix = "DOC#"
	annotationsSK  = "ANNOTATIONS"
	lastPageSK     = "LASTPAGE"
)

func documentPK(documentId string) string {
	return documentPrefix + documentId
}

// dynamoAnnotations stores the whole page map as the JSON blob clients exchange,
// so the durable record matches the wire format byte for byte.
type dynamoAnnotations struct {
	PK      string `dynamodbav:"PK"`
	SK      string `dynamodbav:"SK"`
	Data    string `dynamodbav:"Data"`
	Updated int64  `dynamodbav:"Updated"`
}

// Map domain AnnotationRecord -> Dynamo
func annotationsToDynamo(r models.AnnotationRecord) (dynamoAnnotations, error) {
	annotations := r.Annotations
	if annotations == nil {
		annotations = models.PageAnnotations{}
	}
	data, err := json.Marshal(annotations)
	if err != nil {
		return dynamoAnnotations{}, fmt.Errorf("marshal annotations: %w", err)
	}
	return dynamoAnnotations{
		PK:      documentPK(r.DocumentId),
		SK:      annotationsSK,
		Data:    string(data),
		Updated: r.Updated.UnixMilli(),
	}, nil
}

// Map Dynamo -> domain AnnotationRecord
func annotationsFromDynamo(da dynamoAnnotations) (models.AnnotationRecord, error) {
	annotations := models.PageAnnotations{}
	if da.Data != "" {
		if err := json.Unmarshal([]byte(da.Data), &annotations); err != nil {
			return models.AnnotationRecord{}, fmt.Errorf("unmarshal annotations: %w", err)
		}
	}
	return models.AnnotationRecord{
		DocumentId:  da.PK[len(documentPrefix):],
		Annotations: annotations,
		Updated:     time.UnixMilli(da.Updated),
	}, nil
}

// dynamoLastPage keeps the page number string-encoded.
type dynamoLastPage struct {
	PK      string `dynamodbav:"PK"`
	SK      string `dynamodbav:"SK"`
	Page    string `dynamodbav:"Page"`
	Updated int64  `dynamodbav:"Updated"`
}

func lastPageToDynamo(r models.PositionRecord) dynamoLastPage {
	return dynamoLastPage{
		PK:      documentPK(r.DocumentId),
		SK:      lastPageSK,
		Page:    strconv.Itoa(r.Page),
		Updated: r.Updated.UnixMilli(),
	}
}

func lastPageFromDynamo(dl dynamoLastPage) (int, error) {
	page, err := strconv.Atoi(dl.Page)
	if err != nil {
		return 0, fmt.Errorf("malformed last page %q: %w", dl.Page, err)
	}
	return page, nil
}
