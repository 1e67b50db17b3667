package store

import "context"

// KV is the durable read/write pair backing the queue snapshot. Load returns
// nil bytes when nothing has been saved yet.
type KV interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}
