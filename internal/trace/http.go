package trace

import (
	"net/http"
)

// Middleware continues the caller's trace (traceparent or x-trace-id
// headers) or starts a new one, and echoes the span context on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := FromHeaders(r.Header)
		InjectHeaders(w.Header(), tc)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

// FromHeaders builds a server-side span context from request headers.
func FromHeaders(h http.Header) Context {
	return FromMap(map[string]string{
		TraceParentKey: h.Get(TraceParentKey),
		TraceIDKey:     h.Get(TraceIDKey),
		SpanIDKey:      h.Get(SpanIDKey),
	})
}

// InjectHeaders writes tc onto h.
func InjectHeaders(h http.Header, tc Context) {
	for k, v := range tc.ToMap() {
		h.Set(k, v)
	}
}
