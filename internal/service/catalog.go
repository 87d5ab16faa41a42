package service

import (
	"context"
	"sync"
	"time"

	"go-docrequest/internal/model"
)

type RequestTypeSource interface {
	FindByID(ctx context.Context, id int64) (model.RequestType, error)
}

type cachedType struct {
	value    model.RequestType
	loadedAt time.Time
}

// RequestTypeCatalog keeps parsed request types for ttl so a schema is
// decoded once per period rather than once per submission. A ttl of zero
// disables caching.
type RequestTypeCatalog struct {
	source RequestTypeSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[int64]cachedType
}

func NewRequestTypeCatalog(source RequestTypeSource, ttl time.Duration) *RequestTypeCatalog {
	return &RequestTypeCatalog{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]cachedType),
	}
}

// Active returns the type only when it exists and accepts submissions.
func (c *RequestTypeCatalog) Active(ctx context.Context, id int64) (model.RequestType, error) {
	if id <= 0 {
		return model.RequestType{}, model.ErrRequestTypeNotFound
	}

	rt, err := c.lookup(ctx, id)
	if err != nil {
		return model.RequestType{}, err
	}
	if !rt.IsActive {
		return model.RequestType{}, model.ErrRequestTypeNotFound
	}

	return rt, nil
}

func (c *RequestTypeCatalog) Form(ctx context.Context, id int64) (model.SchemaForm, error) {
	rt, err := c.Active(ctx, id)
	if err != nil {
		return model.SchemaForm{}, err
	}

	return rt.Form(), nil
}

func (c *RequestTypeCatalog) Invalidate(id int64) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

func (c *RequestTypeCatalog) lookup(ctx context.Context, id int64) (model.RequestType, error) {
	now := c.now()

	if c.ttl > 0 {
		c.mu.RLock()
		entry, ok := c.entries[id]
		c.mu.RUnlock()
		if ok && now.Sub(entry.loadedAt) < c.ttl {
			return entry.value, nil
		}
	}

	rt, err := c.source.FindByID(ctx, id)
	if err != nil {
		return model.RequestType{}, err
	}

	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[id] = cachedType{value: rt, loadedAt: now}
		c.mu.Unlock()
	}

	return rt, nil
}
