// Package identity treats authentication as a black box: verify a credential,
// get back a principal id or nothing.
package identity

import "context"

// Verifier resolves a bearer credential to a principal id. An empty principal
// with a nil error means anonymous, which most endpoints allow.
type Verifier interface {
	Verify(ctx context.Context, credential string) (principal string, err error)
}

// Anonymous never authenticates anyone.
type Anonymous struct{}

func (Anonymous) Verify(context.Context, string) (string, error) {
	return "", nil
}

// StaticTokens maps exact bearer tokens to principal ids, enough for local
// development and tests.
type StaticTokens map[string]string

func (s StaticTokens) Verify(_ context.Context, credential string) (string, error) {
	return s[credential], nil
}
