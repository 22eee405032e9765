package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"revenue-backend/internal/config"
)

// ReceiptStore uploads proof-of-collection receipts to S3-compatible object
// storage (R2 in production). Objects are keyed per submission and receipt
// type, so re-uploading a receipt overwrites the previous one.
type ReceiptStore struct {
	client *s3.Client
	bucket string
}

func NewReceiptStore(cfg *config.Config) (*ReceiptStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Storage.AccessKey,
			cfg.Storage.SecretKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Storage.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("configure storage client: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
		}
	})

	return &ReceiptStore{client: client, bucket: cfg.Storage.Bucket}, nil
}

// Upload stores the receipt bytes and returns the object key and the SHA-256
// content hash recorded alongside the submission.
func (s *ReceiptStore) Upload(ctx context.Context, submissionID int, receiptType string, contentType string, data []byte) (key, hash string, err error) {
	sum := sha256.Sum256(data)
	hash = hex.EncodeToString(sum[:])
	key = fmt.Sprintf("receipts/%d/%s", submissionID, receiptType)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("upload receipt: %w", err)
	}

	log.Printf("[Storage] Uploaded receipt %s (%d bytes)", key, len(data))
	return key, hash, nil
}
