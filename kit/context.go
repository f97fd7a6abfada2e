// Package kit carries request-scoped metadata through context and adapts
// service endpoints onto transports. Handlers and MCP tools both funnel into
// Endpoint so the service layer never sees transport types.
package kit

import "context"

// Endpoint is one service operation in transport-neutral form.
type Endpoint func(ctx context.Context, req any) (any, error)

type contextKey string

const (
	// TransportKey records how the request arrived: "http", "mcp" or "cli".
	TransportKey contextKey = "kit_transport"
	// RequestIDKey carries the per-request correlation ID.
	RequestIDKey contextKey = "kit_request_id"
	// DocumentIDKey carries the ID assigned to an uploaded invoice document.
	DocumentIDKey contextKey = "kit_document_id"
	// RemoteAddrKey carries the client address for HTTP requests.
	RemoteAddrKey contextKey = "kit_remote_addr"
)

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithDocumentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, id)
}
func GetDocumentID(ctx context.Context) string {
	v, _ := ctx.Value(DocumentIDKey).(string)
	return v
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(RemoteAddrKey).(string)
	return v
}
