// Package service maps docchat domain operations onto backend endpoints.
//
// Services hold no state and no business rules: each method is one call
// through the API client plus the unwrapping of its response envelope.
// Client errors are returned unchanged.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/raphaelgruber/docchat/internal/client"
)

// Caller is the part of client.Client the services depend on.
type Caller interface {
	Call(ctx context.Context, req client.Request) (*client.Response, error)
}

func call[T any](ctx context.Context, c Caller, req client.Request) (T, error) {
	var zero T
	resp, err := c.Call(ctx, req)
	if err != nil {
		return zero, err
	}
	return client.Decode[T](resp)
}

// callEnveloped decodes either {"<key>": T} or a bare T. Some update
// endpoints answer with the bare resource while reads always wrap it.
func callEnveloped[T any](ctx context.Context, c Caller, req client.Request, key string) (*T, error) {
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}

	envelope, err := client.Decode[map[string]json.RawMessage](resp)
	if err != nil {
		return nil, err
	}
	raw, ok := envelope[key]
	if !ok {
		raw = resp.Data
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &out, nil
}

func pathID(id string) string {
	return url.PathEscape(id)
}
