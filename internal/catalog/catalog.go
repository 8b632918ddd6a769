// Package catalog caches the list of image surveys the catalog archive offers.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sky-unifier/sky-unifier-go/internal/archive/skyview"
)

// Lister loads the survey groups from the archive.
type Lister interface {
	ListSurveys(ctx context.Context) ([]skyview.SurveyGroup, error)
}

// Catalog keeps the archive's category order.
type Catalog struct {
	Groups []skyview.SurveyGroup
}

func (c Catalog) Count() int {
	n := 0
	for _, g := range c.Groups {
		n += len(g.Surveys)
	}
	return n
}

// All returns every survey in category order.
func (c Catalog) All() []string {
	out := make([]string, 0, c.Count())
	for _, g := range c.Groups {
		out = append(out, g.Surveys...)
	}
	return out
}

// LoadTimeout bounds one archive listing. The listing is detached from the
// caller that started it; a caller whose context ends stops waiting.
const LoadTimeout = 30 * time.Second

// Cache loads the catalog on first successful use. Failed loads are not
// cached: Get logs them and returns an empty catalog.
type Cache struct {
	lister Lister
	logger *slog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	loaded bool
	value  Catalog
}

func NewCache(lister Lister, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{lister: lister, logger: logger}
}

func (c *Cache) Get(ctx context.Context) Catalog {
	c.mu.RLock()
	if c.loaded {
		v := c.value
		c.mu.RUnlock()
		return v
	}
	c.mu.RUnlock()

	v, err := c.load(ctx, false)
	if err != nil {
		c.logger.Warn("survey listing failed", "error", err)
		return Catalog{}
	}
	return v
}

// Refresh reloads the catalog. On error the previous value is kept.
func (c *Cache) Refresh(ctx context.Context) (Catalog, error) {
	return c.load(ctx, true)
}

func (c *Cache) load(ctx context.Context, force bool) (Catalog, error) {
	key := "get"
	if force {
		key = "refresh"
	}
	ch := c.group.DoChan(key, func() (any, error) {
		if !force {
			c.mu.RLock()
			loaded, cached := c.loaded, c.value
			c.mu.RUnlock()
			if loaded {
				return cached, nil
			}
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()
		groups, err := c.lister.ListSurveys(lctx)
		if err != nil {
			return Catalog{}, err
		}
		cat := Catalog{Groups: groups}
		c.mu.Lock()
		c.value, c.loaded = cat, true
		c.mu.Unlock()
		c.logger.Info("survey catalog loaded", "categories", len(groups), "surveys", cat.Count())
		return cat, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Catalog{}, res.Err
		}
		return res.Val.(Catalog), nil
	case <-ctx.Done():
		return Catalog{}, ctx.Err()
	}
}
