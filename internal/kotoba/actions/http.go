package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bdobrica/Kotoba/common/errkind"
)

// maxErrorBody caps how much of an upstream error body is kept.
const maxErrorBody = 512

// getJSON fetches url and decodes the body into out. Non-2xx responses
// become an Adapter error wrapping *errkind.UpstreamError.
func getJSON(ctx context.Context, client *http.Client, service, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", service, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errkind.E(errkind.Adapter, service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errkind.E(errkind.Adapter, service, &errkind.UpstreamError{
			Service: service,
			Status:  resp.StatusCode,
			Body:    string(body),
		})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errkind.E(errkind.Adapter, service, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
