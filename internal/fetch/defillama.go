package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

// DefaultDefiLlamaURL is the public yields API
const DefaultDefiLlamaURL = "https://yields.llama.fi"

// DefiLlamaClient implements a client for the DeFiLlama yields API
type DefiLlamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDefiLlamaClient creates a new DeFiLlama client. A zero timeout leaves the request unbounded.
func NewDefiLlamaClient(baseURL string, timeout time.Duration) *DefiLlamaClient {
	if baseURL == "" {
		baseURL = DefaultDefiLlamaURL
	}
	httpClient := StandardClient(newRetryClient())
	httpClient.Timeout = timeout
	return &DefiLlamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *DefiLlamaClient) WithHTTPClient(h *http.Client) *DefiLlamaClient {
	c.httpClient = h
	return c
}

// Fetch retrieves all pools from GET {base}/pools. Any transport error, non-2xx status
// or undecodable body is reported as ErrFetchFailed and no partial result is returned.
func (c *DefiLlamaClient) Fetch(ctx context.Context) ([]model.RawPool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pools", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: error creating request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Fetching pools from DeFiLlama: %s", c.baseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: error fetching data from DeFiLlama: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: DeFiLlama API error: status %d, body: %s", ErrFetchFailed, resp.StatusCode, string(body))
	}

	var response struct {
		Data []model.RawPool `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: error decoding response: %v", ErrFetchFailed, err)
	}

	logrus.WithField("count", len(response.Data)).Debug("Received pools from DeFiLlama")
	return response.Data, nil
}
