package memory

import (
	"context"
	"strings"
	"sync"

	domainitem "garagesale/internal/domain/item"
)

// ItemRepository stores listing references in memory.
type ItemRepository struct {
	mu   sync.RWMutex
	byID map[domainitem.ID]*domainitem.Item
}

func NewItemRepository() *ItemRepository {
	return &ItemRepository{byID: make(map[domainitem.ID]*domainitem.Item)}
}

func (r *ItemRepository) ByID(ctx context.Context, id domainitem.ID) (*domainitem.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if item, ok := r.byID[id]; ok {
		return cloneItem(item), nil
	}
	return nil, domainitem.ErrNotFound
}

func (r *ItemRepository) Save(ctx context.Context, item *domainitem.Item) error {
	if item == nil || strings.TrimSpace(string(item.ID)) == "" {
		return domainitem.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[item.ID] = cloneItem(item)
	return nil
}

func cloneItem(i *domainitem.Item) *domainitem.Item {
	if i == nil {
		return nil
	}
	copyItem := *i
	return &copyItem
}
