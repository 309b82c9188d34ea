package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/zlnvch/folio/blob"
)

// Documents larger than this are refused rather than buffered.
const maxDocumentSize = 256 << 20

type MinioDocumentStore struct {
	client *minio.Client
	bucket string
}

func NewMinioDocumentStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioDocumentStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("given bucket '%s' not found in object storage", bucket)
	}

	return &MinioDocumentStore{client: client, bucket: bucket}, nil
}

func objectName(documentId string) string {
	return "documents/" + documentId + ".pdf"
}

func (s *MinioDocumentStore) Fetch(ctx context.Context, documentId string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName(documentId), minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, translate(err)
	}
	if info.Size > maxDocumentSize {
		return nil, fmt.Errorf("document %s is %d bytes, over the %d byte limit", documentId, info.Size, maxDocumentSize)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(err)
	}
	return data, nil
}

func translate(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return blob.ErrDocumentNotFound
	}
	return err
}
