// Package fetch provides the client for retrieving raw pool records from the yield data provider.
package fetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/yourorg/defi-yield-agent/internal/config"
	"github.com/yourorg/defi-yield-agent/internal/model"
)

// ErrFetchFailed is returned when the provider is unreachable or answers with an unusable response.
var ErrFetchFailed = errors.New("fetch failed")

// Client defines the interface that yield data clients must implement
type Client interface {
	// Fetch retrieves every raw pool record the provider reports in one call
	Fetch(ctx context.Context) ([]model.RawPool, error)
}

// NewClient creates the provider client configured by cfg
func NewClient(cfg config.Config) Client {
	return NewDefiLlamaClient(cfg.DefiLlamaURL, cfg.FetchTimeout)
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
func StandardClient(retryClient *retryablehttp.Client) *http.Client {
	return retryClient.StandardClient()
}
