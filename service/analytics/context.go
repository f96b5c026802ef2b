package analytics

import "context"

type pageKey struct{}

type sessionKey struct{}

type page struct {
	url       string
	userAgent string
}

// WithPage attaches the page URL and user agent that Track stamps on events.
func WithPage(ctx context.Context, pageURL, userAgent string) context.Context {
	return context.WithValue(ctx, pageKey{}, page{url: pageURL, userAgent: userAgent})
}

// WithSession overrides the client session id for events tracked with ctx.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func pageFrom(ctx context.Context) (page, bool) {
	p, ok := ctx.Value(pageKey{}).(page)
	return p, ok
}

func sessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
