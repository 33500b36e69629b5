package directory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
	"github.com/iota-uz/identity-sync/pkg/logging"
)

const nameKeyPrefix = "identity:name:"

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "identity",
	Name:      "directory_cache_lookups_total",
	Help:      "Directory name cache lookups by result.",
}, []string{"result"})

type cachedName struct {
	First  string `json:"f"`
	Middle string `json:"m,omitempty"`
	Last   string `json:"l"`
}

// CachedClient keeps successful directory answers in Redis for ttl.
// Misses and Redis failures fall through to the wrapped directory.
type CachedClient struct {
	next   domain.Directory
	client redis.Cmdable
	ttl    time.Duration
	log    *logrus.Entry
}

type CachedClientOption func(*CachedClient)

func WithCacheLogger(log *logrus.Entry) CachedClientOption {
	return func(c *CachedClient) {
		if log != nil {
			c.log = log
		}
	}
}

func NewCachedClient(next domain.Directory, client redis.Cmdable, ttl time.Duration, opts ...CachedClientOption) *CachedClient {
	c := &CachedClient{
		next:   next,
		client: client,
		ttl:    ttl,
		log:    logging.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *CachedClient) Resolve(ctx context.Context, nationalID string) (person.Name, error) {
	key := nameKey(nationalID)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cn cachedName
		if jsonErr := json.Unmarshal(raw, &cn); jsonErr == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return person.Name{First: cn.First, Middle: cn.Middle, Last: cn.Last}, nil
		}
		cacheLookups.WithLabelValues("corrupt").Inc()
	case errors.Is(err, redis.Nil):
		cacheLookups.WithLabelValues("miss").Inc()
	default:
		cacheLookups.WithLabelValues("error").Inc()
		c.log.WithError(err).Warn("directory cache read failed")
	}

	name, err := c.next.Resolve(ctx, nationalID)
	if err != nil {
		return person.Name{}, err
	}

	b, err := json.Marshal(cachedName{First: name.First, Middle: name.Middle, Last: name.Last})
	if err == nil {
		if setErr := c.client.Set(ctx, key, b, c.ttl).Err(); setErr != nil {
			c.log.WithError(setErr).Warn("directory cache write failed")
		}
	}
	return name, nil
}

// Forget drops the cached name so the next Resolve asks the directory.
func (c *CachedClient) Forget(ctx context.Context, nationalID string) error {
	return c.client.Del(ctx, nameKey(nationalID)).Err()
}

// nameKey hashes the id so national ids never appear in Redis keys.
func nameKey(nationalID string) string {
	sum := sha256.Sum256([]byte(person.NormalizeID(nationalID)))
	return nameKeyPrefix + hex.EncodeToString(sum[:])
}
