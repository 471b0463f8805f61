package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const httpTimeout = 120 * time.Second

// postJSON sends payload and returns the body of a 200 response. Other
// statuses become transport errors carrying the API's own message when
// it has one.
func postJSON(ctx context.Context, cl *http.Client, provider, model, url string, header http.Header, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Model: model, Kind: KindConfiguration, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: provider, Model: model, Kind: KindConfiguration, Err: err}
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	return do(cl, provider, model, req)
}

func getJSON(ctx context.Context, cl *http.Client, provider, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Kind: KindConfiguration, Err: err}
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return do(cl, provider, "", req)
}

func do(cl *http.Client, provider, model string, req *http.Request) ([]byte, error) {
	resp, err := cl.Do(req)
	if err != nil {
		return nil, transportErr(provider, model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr(provider, model, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, transportErr(provider, model, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(respBody, "error.message").String()
		if msg == "" {
			msg = truncate(string(respBody), 200)
		}
		return nil, transportErr(provider, model, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg))
	}
	return respBody, nil
}
