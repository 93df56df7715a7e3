package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const (
	headerAcceptVersion = "Accept-Version"
	headerCallbackURL   = "QuickPay-Callback-Url"
)

// Response is a successful (status <= 299) API response.
type Response struct {
	Status      int
	Body        []byte
	RequestURL  string
	RequestBody string
}

// Transport issues authenticated calls against the CoolPay REST API. It owns
// its connection pool; Close releases it.
type Transport struct {
	base          *url.URL
	apiKey        string
	version       string
	callbackURL   string
	blockCallback bool
	httpTransport *http.Transport
	client        *http.Client
	log           *zerolog.Logger
}

func newTransport(base *url.URL, apiKey, version, callbackURL string, timeout time.Duration, blockCallback bool, logger *zerolog.Logger) *Transport {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Transport{
		base:          base,
		apiKey:        apiKey,
		version:       version,
		callbackURL:   callbackURL,
		blockCallback: blockCallback,
		httpTransport: tr,
		client:        &http.Client{Timeout: timeout, Transport: tr},
		log:           logger,
	}
}

// Execute sends method to path (relative to the API base). params become the
// form body for POST/PUT/PATCH and the query string for GET.
func (t *Transport) Execute(ctx context.Context, method, path string, params Params) (*Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, &domain.APIError{Message: fmt.Sprintf("invalid path %q: %v", path, err)}
	}
	target := t.base.ResolveReference(ref)

	var (
		body    io.Reader
		encoded string
	)
	if len(params) > 0 {
		encoded = params.Encode()
		if method == http.MethodGet {
			if target.RawQuery != "" {
				target.RawQuery += "&"
			}
			target.RawQuery += encoded
			encoded = ""
		} else {
			body = strings.NewReader(encoded)
		}
	}
	reqURL := target.String()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, &domain.APIError{Message: err.Error(), RequestURL: reqURL, RequestBody: encoded}
	}
	req.SetBasicAuth("", t.apiKey)
	req.Header.Set(headerAcceptVersion, t.version)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if t.callbackURL != "" && !t.blockCallback {
		req.Header.Set(headerCallbackURL, t.callbackURL)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		metrics.ObserveGatewayRequest(method, "error", time.Since(start))
		apiErr := &domain.APIError{Message: err.Error(), RequestURL: reqURL, RequestBody: encoded}
		t.logError(apiErr)
		return nil, apiErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	metrics.ObserveGatewayRequest(method, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		apiErr := &domain.APIError{Message: "read response: " + err.Error(), HTTPStatus: resp.StatusCode, RequestURL: reqURL, RequestBody: encoded}
		t.logError(apiErr)
		return nil, apiErr
	}

	if resp.StatusCode > 299 {
		apiErr := &domain.APIError{
			Message:      extractErrorMessage(raw),
			HTTPStatus:   resp.StatusCode,
			RequestURL:   reqURL,
			RequestBody:  encoded,
			ResponseBody: string(raw),
		}
		t.logError(apiErr)
		return nil, apiErr
	}

	t.log.Debug().Str("method", method).Str("url", reqURL).Int("status", resp.StatusCode).Msg("coolpay request")
	return &Response{Status: resp.StatusCode, Body: raw, RequestURL: reqURL, RequestBody: encoded}, nil
}

// Close releases the idle connections held by this transport.
func (t *Transport) Close() {
	t.httpTransport.CloseIdleConnections()
}

func (t *Transport) logError(e *domain.APIError) {
	t.log.Error().
		Int("http_status", e.HTTPStatus).
		Str("request_url", e.RequestURL).
		Str("request_body", e.RequestBody).
		Str("response_body", e.ResponseBody).
		Msg(e.Message)
}

// extractErrorMessage prefers field errors, then the message, then the raw body.
func extractErrorMessage(raw []byte) string {
	var body struct {
		Message string          `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return string(raw)
	}

	var fields map[string]any
	if len(body.Errors) > 0 && json.Unmarshal(body.Errors, &fields) == nil && len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s: %s", k, describe(fields[k])))
		}
		return strings.Join(lines, "\n")
	}
	if body.Message != "" {
		return body.Message
	}
	return string(raw)
}

func describe(v any) string {
	switch val := v.(type) {
	case []any:
		parts := make([]string, 0, len(val))
		for _, e := range val {
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
