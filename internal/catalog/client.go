// Package catalog talks to the KNMI Open Data API: listing dataset files
// newer than a cursor and resolving one-time download URLs.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// DefaultBaseURL is the production KNMI Open Data endpoint.
const DefaultBaseURL = "https://api.dataplatform.knmi.nl/open-data/v1"

// ErrQuotaExceeded signals that the server refused a download URL because
// the API key's request quota is used up. This is an expected terminal
// condition for the current cycle, not a failure: the next cycle picks up
// where this one stopped.
var ErrQuotaExceeded = errors.New("download quota exceeded")

// FileDescriptor is one remote file as reported by the listing endpoint.
type FileDescriptor struct {
	Filename     string `json:"filename"`
	Size         int64  `json:"size,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
	Created      string `json:"created,omitempty"`
}

// Client is an HTTP client for one dataset version.
type Client struct {
	apiKey     string
	dataset    string
	version    string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a catalog client for the given dataset and version.
func NewClient(apiKey, dataset, version string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		dataset:    dataset,
		version:    version,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// WithBaseURL points the client at a different API root. Used against
// test servers and the occasional KNMI acceptance environment.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

type listResponse struct {
	Files       []FileDescriptor `json:"files"`
	IsTruncated bool             `json:"isTruncated"`
	ResultCount int              `json:"resultCount"`
}

type urlResponse struct {
	TemporaryDownloadURL string `json:"temporaryDownloadUrl"`
}

// ListFiles returns up to maxKeys files whose names sort strictly after
// startAfter, ordered by filename. The filename encoding is fixed-width
// and zero-padded, so filename order is chronological order. An empty
// startAfter lists from the beginning of the dataset.
func (c *Client) ListFiles(ctx context.Context, startAfter string, maxKeys int) ([]FileDescriptor, error) {
	params := url.Values{
		"maxKeys": {strconv.Itoa(maxKeys)},
	}
	if startAfter != "" {
		params.Set("startAfterFilename", startAfter)
	}
	u := fmt.Sprintf("%s/datasets/%s/versions/%s/files?%s",
		c.baseURL, url.PathEscape(c.dataset), url.PathEscape(c.version), params.Encode())

	resp, err := c.do(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list files: status %d: %s", resp.StatusCode, body)
	}

	var listing listResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode file listing: %w", err)
	}

	files := listing.Files
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })

	c.logger.Debug("listed remote files",
		"count", len(files), "truncated", listing.IsTruncated, "start_after", startAfter)
	return files, nil
}

// DownloadURL resolves the one-time download URL for a file. Returns
// ErrQuotaExceeded when the server answers 403, which is how it signals
// that the key's request quota is exhausted.
func (c *Client) DownloadURL(ctx context.Context, filename string) (string, error) {
	u := fmt.Sprintf("%s/datasets/%s/versions/%s/files/%s/url",
		c.baseURL, url.PathEscape(c.dataset), url.PathEscape(c.version), url.PathEscape(filename))

	resp, err := c.do(ctx, u)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("resolve url for %s: %w", filename, ErrQuotaExceeded)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("resolve url for %s: status %d: %s", filename, resp.StatusCode, body)
	}

	if msg := resp.Header.Get("X-KNMI-Deprecation"); msg != "" {
		c.logger.Warn("dataset deprecation notice", "message", msg)
	}

	var u2 urlResponse
	if err := json.NewDecoder(resp.Body).Decode(&u2); err != nil {
		return "", fmt.Errorf("decode url response for %s: %w", filename, err)
	}
	if u2.TemporaryDownloadURL == "" {
		return "", fmt.Errorf("resolve url for %s: empty temporaryDownloadUrl", filename)
	}
	return u2.TemporaryDownloadURL, nil
}

func (c *Client) do(ctx context.Context, fullURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	return resp, nil
}
