package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/html"

	"github.com/finboard/server/internal/metrics"
	"github.com/finboard/server/internal/respond"
)

// Sanitizer strips markup from every string of the JSON body, the query and the path parameters
type Sanitizer struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSanitizer creates a new Sanitizer
func NewSanitizer(logger *slog.Logger, m *metrics.Metrics) *Sanitizer {
	return &Sanitizer{logger: logger, metrics: m}
}

// Sanitize replaces the body and query of the request with sanitized copies.
// A body that is not valid JSON is rejected with 400, a non-JSON media type with 415.
func (s *Sanitizer) Sanitize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := readPayload(r)
		if err != nil {
			failPayload(w, r, err, s.logger, s.metrics)
			return
		}

		clean := &payload{
			body:  SanitizeValue(p.body, ""),
			query: sanitizeQuery(p.query),
		}

		out := r.Clone(r.Context())
		if len(p.query) > 0 {
			out.URL.RawQuery = clean.query.Encode()
		}
		if p.body != nil {
			var buf bytes.Buffer
			enc := json.NewEncoder(&buf)
			enc.SetEscapeHTML(false)
			if err := enc.Encode(clean.body); err != nil {
				respond.Fail(w, http.StatusBadRequest, "Malformed JSON body")
				return
			}
			setBody(out, bytes.TrimRight(buf.Bytes(), "\n"))
		}

		next.ServeHTTP(w, out.WithContext(withPayload(out.Context(), clean)))
	})
}

// SanitizeParams sanitizes chi URL parameters. Route parameters are only known
// once the route matched, so this runs inline on parameterized routes.
func (s *Sanitizer) SanitizeParams(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil && len(rctx.URLParams.Values) > 0 {
			values := make([]string, len(rctx.URLParams.Values))
			for i, v := range rctx.URLParams.Values {
				values[i] = StripHTML(v)
			}
			rctx.URLParams.Values = values
		}
		next.ServeHTTP(w, r)
	})
}

// SanitizeValue returns a copy of v with markup stripped from every string.
// Values under credential keys are kept verbatim.
func SanitizeValue(v any, key string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = SanitizeValue(child, k)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = SanitizeValue(child, key)
		}
		return out
	case string:
		if credentialFields[key] {
			return t
		}
		return StripHTML(t)
	default:
		return v
	}
}

func sanitizeQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, vs := range q {
		for _, v := range vs {
			if credentialFields[k] {
				out.Add(k, v)
			} else {
				out.Add(k, StripHTML(v))
			}
		}
	}
	return out
}

// StripHTML removes tags from s. Script and style elements are dropped with their contents.
func StripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Raw())
			}
		case html.StartTagToken:
			if isRawElement(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawElement(z) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawElement(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}
