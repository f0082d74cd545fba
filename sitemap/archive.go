package sitemap

import (
	"context"

	"github.com/tugasin/tugasin-blog/types"
)

// Archive keeps the last good copy of each sitemap document in object storage. A nil Archive is
// valid and reports storage as disabled.
type Archive struct {
	store types.ObjectStore
}

func NewArchive(store types.ObjectStore) *Archive {
	if store == nil {
		return nil
	}
	return &Archive{store: store}
}

func (a *Archive) Save(ctx context.Context, name string, body []byte) error {
	if a == nil {
		return types.ErrStorageIsDisabled
	}
	return a.store.Put(ctx, name, body, ContentType)
}

func (a *Archive) Load(ctx context.Context, name string) ([]byte, error) {
	if a == nil {
		return nil, types.ErrStorageIsDisabled
	}
	return a.store.Get(ctx, name)
}
