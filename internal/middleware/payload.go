package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/finboard/server/internal/metrics"
	"github.com/finboard/server/internal/respond"
)

const payloadKey contextKey = "payload"

// credentialFields carry secrets or signed tokens and pass through the
// sanitizer and the injection guard untouched.
var credentialFields = map[string]bool{
	"password":        true,
	"currentPassword": true,
	"newPassword":     true,
	"confirmPassword": true,
	"token":           true,
	"refreshToken":    true,
	"accessToken":     true,
}

// payload is the decoded request input shared by the sanitizer and the injection guard.
type payload struct {
	body  any
	query url.Values
}

var (
	errMalformedBody    = errors.New("malformed JSON body")
	errUnsupportedMedia = errors.New("unsupported media type")
)

// readPayload decodes the JSON body of r, if any, and restores r.Body so later
// handlers can read it again. A non-empty body of any other media type is refused.
func readPayload(r *http.Request) (*payload, error) {
	p := &payload{query: r.URL.Query()}
	if r.Body == nil || r.Body == http.NoBody {
		return p, nil
	}

	raw, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	setBody(r, raw)

	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}
	if !IsJSON(r) {
		return nil, errUnsupportedMedia
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&p.body); err != nil {
		return nil, errMalformedBody
	}
	if dec.More() {
		return nil, errMalformedBody
	}
	return p, nil
}

// IsJSON reports whether the request declares an application/json body.
func IsJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// failPayload answers a request whose body could not be read by readPayload.
func failPayload(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger, m *metrics.Metrics) {
	switch {
	case isMaxBytesError(err):
		m.Reject(metrics.StagePayloadSize)
		respond.Fail(w, http.StatusRequestEntityTooLarge, msgPayloadTooLarge)
	case errors.Is(err, errUnsupportedMedia):
		m.Reject(metrics.StageMediaType)
		logger.WarnContext(r.Context(), "non-JSON request body",
			"ip", ClientIP(r), "path", r.URL.Path, "content_type", r.Header.Get("Content-Type"))
		respond.Fail(w, http.StatusUnsupportedMediaType, "Unsupported media type")
	default:
		m.Reject(metrics.StageMalformed)
		logger.DebugContext(r.Context(), "malformed request body", "ip", ClientIP(r), "path", r.URL.Path, "error", err)
		respond.Fail(w, http.StatusBadRequest, "Malformed JSON body")
	}
}

func setBody(r *http.Request, raw []byte) {
	r.Body = io.NopCloser(bytes.NewReader(raw))
	r.ContentLength = int64(len(raw))
	r.Header.Set("Content-Length", strconv.Itoa(len(raw)))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
}

func withPayload(ctx context.Context, p *payload) context.Context {
	return context.WithValue(ctx, payloadKey, p)
}

func payloadFrom(ctx context.Context) (*payload, bool) {
	p, ok := ctx.Value(payloadKey).(*payload)
	return p, ok && p != nil
}

// walkStrings calls fn for every string leaf of v together with the nearest object key.
func walkStrings(v any, key string, fn func(key, value string) bool) bool {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if !walkStrings(child, k, fn) {
				return false
			}
		}
	case []any:
		for _, child := range t {
			if !walkStrings(child, key, fn) {
				return false
			}
		}
	case string:
		return fn(key, t)
	}
	return true
}
