// Package catalog looks up products and their current promotions.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/pkg/config"
	"github.com/Skotchmaster/cartsync/pkg/logging"
	"github.com/elastic/go-elasticsearch/v9"
)

type Catalog interface {
	Products(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

// NewClient connects to Elasticsearch and checks the cluster answers.
func NewClient(ctx context.Context, cfg config.Config) (*elasticsearch.Client, error) {
	l := logging.FromContext(ctx).With("component", "catalog")
	l.Info("es_connect", "url", cfg.ESURL)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.ESURL},
		Username:  cfg.ESUser,
		Password:  cfg.ESPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		l.Error("es_info_error", "status", res.StatusCode, "body", string(body))
		return nil, fmt.Errorf("elasticsearch info: %s", res.Status())
	}
	return client, nil
}

type ESCatalog struct {
	ES    *elasticsearch.Client
	Index string
}

// Products fetches several products in one ids query. Missing ids are absent
// from the result.
func (c *ESCatalog) Products(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	out := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = strconv.FormatInt(id, 10)
	}
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"ids": map[string]interface{}{"values": values},
		},
		"size": len(ids),
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode products query: %w", err)
	}

	res, err := c.ES.Search(
		c.ES.Search.WithContext(ctx),
		c.ES.Search.WithIndex(c.Index),
		c.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search products: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source models.Product `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	for _, hit := range r.Hits.Hits {
		out[hit.Source.ID] = hit.Source
	}
	return out, nil
}

// Static serves products from memory.
type Static struct {
	mu       sync.RWMutex
	products map[int64]models.Product
}

func NewStatic(products ...models.Product) *Static {
	s := &Static{products: make(map[int64]models.Product, len(products))}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *Static) Put(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Static) Products(_ context.Context, ids []int64) (map[int64]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
