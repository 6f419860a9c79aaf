package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type mockS3Client struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (m *mockS3Client) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver_UploadArchive(t *testing.T) {
	mock := &mockS3Client{}
	a := NewS3Archiver(mock, "storepulse-archives")

	payload := []byte("compressed-bytes")
	if err := a.UploadArchive(context.Background(), "alerts/dead/2026/08/batch_x.jsonl.gz", payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.inputs) != 1 {
		t.Fatalf("expected 1 PutObject call, got %d", len(mock.inputs))
	}
	input := mock.inputs[0]
	if *input.Bucket != "storepulse-archives" {
		t.Errorf("unexpected bucket %q", *input.Bucket)
	}
	if *input.Key != "alerts/dead/2026/08/batch_x.jsonl.gz" {
		t.Errorf("unexpected key %q", *input.Key)
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if string(body) != "compressed-bytes" {
		t.Errorf("body not passed through, got %q", body)
	}
	if *input.ContentEncoding != "gzip" {
		t.Errorf("expected gzip content encoding, got %q", *input.ContentEncoding)
	}
}

func TestS3Archiver_UploadFailure(t *testing.T) {
	mock := &mockS3Client{err: errors.New("access denied")}
	a := NewS3Archiver(mock, "storepulse-archives")

	if err := a.UploadArchive(context.Background(), "k", []byte("x")); err == nil {
		t.Fatal("expected error")
	}
}
