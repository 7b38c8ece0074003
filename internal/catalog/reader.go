package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sakif/snuffspec/internal/metrics"
	"github.com/sakif/snuffspec/internal/model"
)

// DefaultCacheTTL is how long a fetched catalog is reused.
const DefaultCacheTTL = 60 * time.Second

const cacheSize = 512

// Source is where products come from. Shopify is the only production one.
type Source interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
}

// Reader caches a Source. Errors are never cached.
type Reader struct {
	src     Source
	metrics *metrics.Metrics

	// nil when caching is disabled
	lists    *expirable.LRU[string, []model.Product]
	products *expirable.LRU[int64, model.Product]
}

const listKey = "all"

// NewReader caches results for ttl. A ttl of zero or less disables the cache.
func NewReader(src Source, ttl time.Duration, m *metrics.Metrics) *Reader {
	r := &Reader{src: src, metrics: m}
	if ttl > 0 {
		r.lists = expirable.NewLRU[string, []model.Product](1, nil, ttl)
		r.products = expirable.NewLRU[int64, model.Product](cacheSize, nil, ttl)
	}
	return r
}

func (r *Reader) ListProducts(ctx context.Context) ([]model.Product, error) {
	if r.lists != nil {
		if products, ok := r.lists.Get(listKey); ok {
			r.metrics.CatalogCacheHit()
			return products, nil
		}
		r.metrics.CatalogCacheMiss()
	}

	products, err := r.src.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	if r.lists != nil {
		r.lists.Add(listKey, products)
		for _, p := range products {
			r.products.Add(p.ID, p)
		}
	}
	return products, nil
}

func (r *Reader) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	if r.products != nil {
		if p, ok := r.products.Get(id); ok {
			r.metrics.CatalogCacheHit()
			return &p, nil
		}
		r.metrics.CatalogCacheMiss()
	}

	p, err := r.src.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.products != nil {
		r.products.Add(id, *p)
	}
	return p, nil
}

// Search keeps the products whose title, vendor, product type or tags
// contain term, ignoring case. A blank term keeps everything.
func Search(products []model.Product, term string) []model.Product {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return products
	}

	matched := make([]model.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Title), term) ||
			strings.Contains(strings.ToLower(p.Vendor), term) ||
			strings.Contains(strings.ToLower(p.ProductType), term) ||
			strings.Contains(strings.ToLower(p.Tags), term) {
			matched = append(matched, p)
		}
	}
	return matched
}
