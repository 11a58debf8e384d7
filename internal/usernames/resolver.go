package usernames

import (
	"context"
	"strings"

	"github.com/brydisanto/smash-the-wall/internal/metrics"
	"go.uber.org/zap"
)

// AccountSource is the external identity lookup; *opensea.Client in
// production.
type AccountSource interface {
	Account(ctx context.Context, address string) (string, error)
}

type Resolver struct {
	src   AccountSource
	cache Cache
	log   *zap.Logger
}

func NewResolver(src AccountSource, cache Cache, log *zap.Logger) *Resolver {
	return &Resolver{src: src, cache: cache, log: log}
}

// Resolve returns the username for an address or "" when it has none.
// Results are cached including the negative case, so repeated resolution
// of the same address issues at most one external call. A lookup failure
// is also cached negatively: re-trying a dead lookup per request would
// burn the rate budget for nothing.
func (r *Resolver) Resolve(ctx context.Context, addr string) string {
	addr = strings.ToLower(addr)
	if name, ok := r.cache.Get(ctx, addr); ok {
		return name
	}

	metrics.UsernameLookups.Inc()
	name, err := r.src.Account(ctx, addr)
	if err != nil {
		r.log.Debug("usernames: lookup failed", zap.String("addr", addr), zap.Error(err))
		name = ""
	}
	r.cache.Set(ctx, addr, name)
	return name
}
