// Package blobstore keeps immutable JSON documents in NATS JetStream
// object-store buckets. URIs look like blob://<bucket>/<name>.
package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/agentbus/storage"
)

// Bucket names.
const (
	BucketTaskSpecs     = "task-specs"
	BucketWorkflowPlans = "workflow-plans"
)

const uriScheme = "blob://"

// Store is the JetStream-backed storage.BlobStore.
type Store struct {
	buckets map[string]jetstream.ObjectStore
}

// New creates a Store, creating the spec and plan buckets if absent.
func New(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	buckets := make(map[string]jetstream.ObjectStore, 2)
	for _, name := range []string{BucketTaskSpecs, BucketWorkflowPlans} {
		os, err := getOrCreateBucket(ctx, js, name)
		if err != nil {
			return nil, fmt.Errorf("create %s bucket: %w", name, err)
		}
		buckets[name] = os
	}
	return &Store{buckets: buckets}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.ObjectStore, error) {
	os, err := js.ObjectStore(ctx, name)
	if err == nil {
		return os, nil
	}
	return js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Agent bus %s documents", name),
	})
}

// SpecPath derives the blob path for a dialogue's specification.
func SpecPath(dialogueID string) string {
	return fmt.Sprintf("%s/%s-%d.json", BucketTaskSpecs, dialogueID, time.Now().UnixMilli())
}

// PlanPath derives the blob path for a task's workflow plan.
func PlanPath(taskID string) string {
	return fmt.Sprintf("%s/%s-%d.json", BucketWorkflowPlans, taskID, time.Now().UnixMilli())
}

// PutJSON stores v at the given bucket-qualified path and returns the
// blob URI. Documents are write-once; the path embeds a timestamp so
// collisions do not arise in practice.
func (s *Store) PutJSON(ctx context.Context, path string, v any) (string, error) {
	bucket, name, err := splitPath(path)
	if err != nil {
		return "", err
	}
	os, ok := s.buckets[bucket]
	if !ok {
		return "", fmt.Errorf("unknown blob bucket %q", bucket)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal blob %s: %w", path, err)
	}
	if _, err := os.PutBytes(ctx, name, data); err != nil {
		return "", fmt.Errorf("store blob %s: %w", path, err)
	}
	return uriScheme + path, nil
}

// GetJSON resolves a blob URI and unmarshals the document into out.
func (s *Store) GetJSON(ctx context.Context, uri string, out any) error {
	path, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return fmt.Errorf("invalid blob uri %q", uri)
	}
	bucket, name, err := splitPath(path)
	if err != nil {
		return err
	}
	os, ok := s.buckets[bucket]
	if !ok {
		return fmt.Errorf("unknown blob bucket %q", bucket)
	}

	data, err := os.GetBytes(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return storage.ErrBlobNotFound
		}
		return fmt.Errorf("fetch blob %s: %w", uri, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode blob %s: %w", uri, err)
	}
	return nil
}

func splitPath(path string) (bucket, name string, err error) {
	bucket, name, ok := strings.Cut(path, "/")
	if !ok || bucket == "" || name == "" {
		return "", "", fmt.Errorf("invalid blob path %q", path)
	}
	return bucket, name, nil
}
