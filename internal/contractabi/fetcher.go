package contractabi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Fetcher downloads verified interface definitions from an Etherscan-compatible explorer.
type Fetcher struct {
	BaseURL string
	APIKey  string
	Dir     string
	Client  *http.Client
	Logger  *zap.Logger
}

type explorerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// NewFetcher builds a fetcher that stores files under dir.
func NewFetcher(baseURL, apiKey, dir string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Dir:     dir,
		Client:  &http.Client{Timeout: 15 * time.Second},
		Logger:  logger,
	}
}

// Fetch downloads the ABI for address, writes it to Dir and returns the file path.
func (f *Fetcher) Fetch(ctx context.Context, address string) (string, error) {
	if f.BaseURL == "" {
		return "", fmt.Errorf("explorer url is empty")
	}

	endpoint, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse explorer url: %w", err)
	}
	query := endpoint.Query()
	query.Set("module", "contract")
	query.Set("action", "getabi")
	query.Set("address", address)
	if f.APIKey != "" {
		query.Set("apikey", f.APIKey)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("request abi: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var payload explorerResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if payload.Status != "1" {
		return "", fmt.Errorf("explorer error: %s: %s", payload.Message, payload.Result)
	}
	if _, err := Parse([]byte(payload.Result)); err != nil {
		return "", fmt.Errorf("explorer returned invalid abi: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(payload.Result), "", "  "); err != nil {
		return "", fmt.Errorf("format abi: %w", err)
	}

	if f.Dir != "" {
		if err := os.MkdirAll(f.Dir, 0o755); err != nil {
			return "", fmt.Errorf("create abi dir: %w", err)
		}
	}
	path := filepath.Join(f.Dir, FileName(address))
	if err := os.WriteFile(path, pretty.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write abi: %w", err)
	}

	f.Logger.Info("abi fetched", zap.String("address", address), zap.String("path", path))
	return path, nil
}

func (f *Fetcher) client() *http.Client {
	if f.Client == nil {
		return http.DefaultClient
	}
	return f.Client
}
