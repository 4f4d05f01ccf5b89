package memo

import (
	"context"
	"crypto/sha256"
)

type ctxKey int

const (
	ctxKeyFrame ctxKey = iota
	ctxKeyDigest
	ctxKeyEngine
)

// sha256Digest is used when a context carries no engine-configured digest,
// e.g. in tests that call Fingerprint directly. It matches Engine's own
// default (internal/digest's sha256 implementation) structurally without
// importing it.
type sha256Digest struct{}

func (sha256Digest) Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func digestFromContext(ctx context.Context) Digest {
	if d, ok := ctx.Value(ctxKeyDigest).(Digest); ok && d != nil {
		return d
	}
	return sha256Digest{}
}

// withDigest returns a context carrying d as the active digest for
// Fingerprint calls. Engine.Context installs it; code outside this package
// reaches it only through Engine.Context.
func withDigest(ctx context.Context, d Digest) context.Context {
	return context.WithValue(ctx, ctxKeyDigest, d)
}

func withEngine(ctx context.Context, e *Engine) context.Context {
	return context.WithValue(ctx, ctxKeyEngine, e)
}

func engineFromContext(ctx context.Context) *Engine {
	e, _ := ctx.Value(ctxKeyEngine).(*Engine)
	return e
}
