package scheduler

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3PutObjectAPI abstracts the S3 PutObject operation for testability.
// Production code uses the *s3.Client from aws-sdk-go-v2.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes dead-letter exports to an S3 bucket.
type S3Archiver struct {
	client S3PutObjectAPI
	bucket string
}

// NewS3Archiver creates an S3Archiver targeting the given bucket.
func NewS3Archiver(client S3PutObjectAPI, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// UploadArchive stores one gzipped JSONL export under the given key.
func (a *S3Archiver) UploadArchive(ctx context.Context, key string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(data),
		ContentType:     aws.String("application/jsonl"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("scheduler: failed to upload archive s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}

var _ DeadLetterArchiver = (*S3Archiver)(nil)
