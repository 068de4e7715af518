package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/storage"
)

type bucketStore struct {
	log        *logger.Logger
	client     *gcs.Client
	bucketName string
	baseURL    string
}

// NewBucketStore opens the public lecture bucket named by
// LECTURIA_GCS_BUCKET. Setting STORAGE_EMULATOR_HOST switches the client
// to an unauthenticated emulator endpoint.
func NewBucketStore(ctx context.Context, log *logger.Logger) (storage.ArtifactStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	serviceLog := log.With("service", "BucketStore")

	bucketName := strings.TrimSpace(os.Getenv("LECTURIA_GCS_BUCKET"))
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var LECTURIA_GCS_BUCKET")
	}

	var opts []option.ClientOption
	emulator := strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/")
	if emulator != "" {
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(gcs.ScopeReadWrite))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	baseURL := "https://storage.googleapis.com"
	if emulator != "" {
		baseURL = emulator
	}

	serviceLog.Info("Object storage initialized",
		"bucket", bucketName,
		"emulator_host", emulator,
	)

	return &bucketStore{
		log:        serviceLog,
		client:     client,
		bucketName: bucketName,
		baseURL:    baseURL,
	}, nil
}

func (bs *bucketStore) Exists(ctx context.Context, key storage.Key) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := bs.client.Bucket(bs.bucketName).Object(key.Object()).Attrs(ctx)
	if err == gcs.ErrObjectNotExist {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat GCS object %q: %w", key.Object(), err)
	}
	return true, nil
}

func (bs *bucketStore) Get(ctx context.Context, key storage.Key) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	r, err := bs.client.Bucket(bs.bucketName).Object(key.Object()).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS reader for %q: %w", key.Object(), err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %q: %w", key.Object(), err)
	}
	return data, nil
}

func (bs *bucketStore) Put(ctx context.Context, key storage.Key, data []byte, mimeType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	w := bs.client.Bucket(bs.bucketName).Object(key.Object()).NewWriter(ctx)
	if mimeType != "" {
		w.ContentType = mimeType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (bs *bucketStore) DeleteLecture(ctx context.Context, lectureID string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	prefix := storage.Key{LectureID: lectureID}.Object() + "/"
	it := bs.client.Bucket(bs.bucketName).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list lecture objects: %w", err)
		}
		if err := bs.client.Bucket(bs.bucketName).Object(attrs.Name).Delete(ctx); err != nil {
			bs.log.Warn("failed to delete lecture object (ignored)", "object", attrs.Name, "error", err)
		}
	}
	return nil
}

func (bs *bucketStore) PublicURL(key storage.Key) string {
	return fmt.Sprintf("%s/%s/%s", bs.baseURL, bs.bucketName, key.Object())
}
