package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/profitlens/profitlens/internal/config"
	"github.com/profitlens/profitlens/internal/pricing/domain"
	"go.uber.org/zap"
)

// CatalogClient pulls the upstream pricing catalog over HTTP with retries.
type CatalogClient struct {
	url    string
	client *retryablehttp.Client
	log    *zap.Logger
}

func NewCatalogClient(cfg config.Config, log *zap.Logger) domain.CatalogSource {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	return &CatalogClient{
		url:    cfg.PricingCatalogURL,
		client: client,
		log:    log.Named("pricing.catalog"),
	}
}

func (c *CatalogClient) Fetch(ctx context.Context) (map[string]domain.CatalogEntry, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog fetch: unexpected status %d", resp.StatusCode)
	}

	var catalog map[string]domain.CatalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("catalog fetch: decode: %w", err)
	}

	// The upstream file carries a schema-documentation entry alongside the
	// real models.
	delete(catalog, "sample_spec")

	c.log.Info("catalog fetched", zap.Int("entries", len(catalog)))
	return catalog, nil
}
