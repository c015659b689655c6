package observability

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLen bounds ids accepted from clients.
const maxRequestIDLen = 128

type requestIDKey struct{}

// GenerateRequestID returns a random UUID without dashes.
func GenerateRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// ExtractHTTPContext stores the caller's X-Request-ID, or a fresh one when
// the header is missing or oversized, in ctx.
func ExtractHTTPContext(ctx context.Context, r *http.Request) context.Context {
	id := r.Header.Get(HeaderRequestID)
	if id == "" || len(id) > maxRequestIDLen {
		id = GenerateRequestID()
	}
	return WithRequestID(ctx, id)
}

// InjectHTTPHeaders echoes the request id on the response.
func InjectHTTPHeaders(w http.ResponseWriter, ctx context.Context) {
	if id, ok := RequestIDFromContext(ctx); ok {
		w.Header().Set(HeaderRequestID, id)
	}
}
