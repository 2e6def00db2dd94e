package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/portalkit/viewdata/internal/domain"
)

// Source is anything that can resolve collection metadata, usually the
// record store itself.
type Source interface {
	EntityMetadata(ctx context.Context, collection string) (*domain.EntityMetadata, error)
}

// Loader batches and caches metadata resolution so a request composing
// filters for several collections pays for each lookup once.
type Loader struct {
	loader *dataloader.Loader
}

// NewLoader wraps a metadata source in a batched, cached loader.
func NewLoader(source Source) *Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))
		for i, key := range keys {
			meta, err := source.EntityMetadata(ctx, key.String())
			if err != nil {
				results[i] = &dataloader.Result{Error: fmt.Errorf("load %s metadata: %w", key.String(), err)}
				continue
			}
			results[i] = &dataloader.Result{Data: meta}
		}
		return results
	}

	return &Loader{
		loader: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(2*time.Millisecond)),
	}
}

// EntityMetadata resolves a collection's metadata through the loader cache.
func (l *Loader) EntityMetadata(ctx context.Context, collection string) (*domain.EntityMetadata, error) {
	thunk := l.loader.Load(ctx, dataloader.StringKey(collection))
	value, err := thunk()
	if err != nil {
		return nil, err
	}
	meta, ok := value.(*domain.EntityMetadata)
	if !ok {
		return nil, fmt.Errorf("unexpected metadata payload for %s", collection)
	}
	return meta, nil
}
