package client

import "context"

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	// AccessToken returns the current access token and whether one is available.
	AccessToken() (string, bool)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// AccessToken implements TokenSource.
func (t StaticToken) AccessToken() (string, bool) {
	return string(t), t != ""
}

type tokenKey struct{}

// WithToken returns a context whose calls use token instead of the client's TokenSource.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}
