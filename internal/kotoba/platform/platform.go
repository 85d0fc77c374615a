// Package platform holds what the outbound adapters share: a JSON request
// helper that turns non-2xx answers into Adapter errors.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Kotoba/common/errkind"
)

// DefaultTimeout is the transport timeout for adapter HTTP clients.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// NewHTTPClient returns a client with the adapter transport timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// PostJSON sends body as JSON to url with the given headers and decodes a
// 2xx answer into out (which may be nil). A non-2xx answer becomes an
// Adapter error wrapping *errkind.UpstreamError for service.
func PostJSON(ctx context.Context, client *http.Client, service, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", service, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errkind.E(errkind.Adapter, service, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errkind.E(errkind.Adapter, service, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errkind.E(errkind.Adapter, service, &errkind.UpstreamError{
			Service: service,
			Status:  resp.StatusCode,
			Body:    truncate(raw),
		})
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errkind.E(errkind.Adapter, service, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
