// Package bridge forwards add-on function calls to the external add-on
// library. Only allow-listed functions are forwarded; arguments and results
// pass through unchanged.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
)

// maxResultSize caps a library response.
const maxResultSize = 4 << 20

// Function describes one allow-listed library entry point.
type Function struct {
	Name     string
	Billable bool
}

// Functions is the allow-list. Billable functions consume one operation from
// the caller's monthly quota.
var Functions = []Function{
	{Name: "onOpen"},
	{Name: "onInstall"},
	{Name: "showSidebar"},
	{Name: "showTemplateGallery"},
	{Name: "listTemplates"},
	{Name: "getUsageSummary"},
	{Name: "applyTemplate", Billable: true},
	{Name: "suggestFormula", Billable: true},
	{Name: "explainFormula", Billable: true},
	{Name: "fixFormula", Billable: true},
	{Name: "analyzeCrossSheet", Billable: true},
	{Name: "summarizeRange", Billable: true},
	{Name: "generateChart", Billable: true},
	{Name: "cleanData", Billable: true},
	{Name: "detectAnomalies", Billable: true},
}

var byName = func() map[string]Function {
	m := make(map[string]Function, len(Functions))
	for _, f := range Functions {
		m[f.Name] = f
	}
	return m
}()

// Errors returned by Lookup and Call.
var (
	ErrUnknownFunction = apperr.NotFound("UNKNOWN_FUNCTION", "function is not available through the bridge")
	ErrNotConfigured   = apperr.New(apperr.KindUpstream, "BRIDGE_NOT_CONFIGURED", "add-on library is not configured")
	ErrInvalidArgs     = apperr.Validation("INVALID_ARGUMENTS", "arguments must be a JSON value")
)

// Lookup returns the allow-list entry for name.
func Lookup(name string) (Function, error) {
	f, ok := byName[name]
	if !ok {
		return Function{}, ErrUnknownFunction
	}
	return f, nil
}

// Caller context forwarded to the library.
const (
	HeaderUserID    = "X-Sheetsmith-User"
	HeaderRequestID = "X-Request-Id"
)

// Forwarder posts calls to {baseURL}/{function}.
type Forwarder struct {
	baseURL string
	secret  string
	http    *http.Client
	now     func() time.Time
}

// NewForwarder returns a forwarder for the library at baseURL. An empty
// baseURL yields a forwarder that rejects every call with ErrNotConfigured.
func NewForwarder(baseURL string, httpClient *http.Client) *Forwarder {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Forwarder{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, now: time.Now}
}

// SetSigningSecret makes the forwarder sign every call. See Sign.
func (f *Forwarder) SetSigningSecret(secret string) {
	f.secret = secret
}

// Call forwards args to fn and returns the library's JSON result verbatim.
func (f *Forwarder) Call(ctx context.Context, fn Function, userID, requestID string, args json.RawMessage) (json.RawMessage, error) {
	if f.baseURL == "" {
		return nil, ErrNotConfigured
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("null")
	}
	if !json.Valid(args) {
		return nil, ErrInvalidArgs
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/"+url.PathEscape(fn.Name), bytes.NewReader(args))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("build bridge request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderUserID, userID)
	if requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}
	if f.secret != "" {
		ts := f.now().Unix()
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderSignature, Sign(f.secret, ts, userID, args))
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, apperr.Upstream("BRIDGE_UNAVAILABLE", "add-on library unavailable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultSize+1))
	if err != nil {
		return nil, apperr.Upstream("BRIDGE_UNAVAILABLE", "add-on library unavailable", err)
	}
	if len(body) > maxResultSize {
		return nil, apperr.Upstream("BRIDGE_BAD_RESPONSE", "add-on library response too large", nil)
	}

	if resp.StatusCode >= 400 {
		return nil, apperr.Upstream("BRIDGE_CALL_FAILED",
			fmt.Sprintf("%s failed", fn.Name),
			fmt.Errorf("library returned %s: %s", resp.Status, truncate(body, 256)))
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return nil, apperr.Upstream("BRIDGE_BAD_RESPONSE", "add-on library returned invalid JSON", nil)
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
