// Package kv defines the persistence transport used by the store and the user
// directory: whole documents are saved and loaded as byte blobs under a fixed
// key. Implementations never interpret the payload.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no blob exists for the key.
var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}
