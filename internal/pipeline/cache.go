package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neka-nat/lecturia/internal/platform/logger"
	"github.com/neka-nat/lecturia/internal/storage"
)

// RunStage is the idempotence gate every pipeline stage goes through. If an
// artifact already exists at key it is downloaded, decoded and returned
// without invoking compute; otherwise compute runs, its result is encoded
// and uploaded to the same key, then returned. Store read failures and
// undecodable cached artifacts are treated as a cache miss. If compute
// fails nothing is written, so a later run retries the stage from scratch.
func RunStage[T any](
	ctx context.Context,
	log *logger.Logger,
	store storage.ArtifactStore,
	key storage.Key,
	mimeType string,
	decode func([]byte) (T, error),
	encode func(T) ([]byte, error),
	compute func(context.Context) (T, error),
) (T, error) {
	var zero T

	exists, err := store.Exists(ctx, key)
	if err != nil {
		log.Warn("artifact existence check failed, recomputing", "key", key.Object(), "error", err)
	} else if exists {
		data, err := store.Get(ctx, key)
		if err != nil {
			log.Warn("cached artifact unreadable, recomputing", "key", key.Object(), "error", err)
		} else if v, derr := decode(data); derr != nil {
			log.Warn("cached artifact undecodable, recomputing", "key", key.Object(), "error", derr)
		} else {
			log.Info("reusing cached artifact", "key", key.Object())
			return v, nil
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return zero, err
	}
	data, err := encode(v)
	if err != nil {
		return zero, fmt.Errorf("encode artifact %s: %w", key.Name, err)
	}
	if err := store.Put(ctx, key, data, mimeType); err != nil {
		return zero, fmt.Errorf("store artifact %s: %w", key.Object(), err)
	}
	return v, nil
}

// DecodeJSON and EncodeJSON adapt a JSON-persisted artifact type to RunStage.
func DecodeJSON[T any](data []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

func EncodeJSON[T any](v *T) ([]byte, error) {
	return json.Marshal(v)
}

// RawBytes passes audio and other binary artifacts through unchanged.
func RawBytes(data []byte) ([]byte, error) { return data, nil }

func DecodeText(data []byte) (string, error) { return string(data), nil }

func EncodeText(s string) ([]byte, error) { return []byte(s), nil }
