package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zlnvch/folio/cache"
	"go.uber.org/zap"
)

const (
	cacheTTL = 10 * time.Minute
	// page counts never change for a stored document
	pageCountTTL = 24 * time.Hour
)

type RedisViewerCache struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewRedisViewerCache(ctx context.Context, devMode bool, redisEndpoint string, logger *zap.Logger) (*RedisViewerCache, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
			// AWS elasticache endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisViewerCacheFromClient(client, logger), nil
}

func NewRedisViewerCacheFromClient(client redis.UniversalClient, logger *zap.Logger) *RedisViewerCache {
	return &RedisViewerCache{client: client, logger: logger}
}

func (redisCache *RedisViewerCache) Publish(ctx context.Context, channel string, message []byte) error {
	return redisCache.client.Publish(ctx, channel, message).Err()
}

// Subscribe delivers messages to handler on a background goroutine until ctx is done.
func (redisCache *RedisViewerCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					redisCache.logger.Info("pubsub channel closed", zap.String("channel", channel))
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Keys of one document share a hash tag so they land in the same cluster slot.
func buildAnnotationsKey(documentId string) string {
	return "doc:{" + documentId + "}:annotations"
}

func buildLastPageKey(documentId string) string {
	return "doc:{" + documentId + "}:lastpage"
}

func buildPageCountKey(documentId string) string {
	return "doc:{" + documentId + "}:pages"
}

func (redisCache *RedisViewerCache) GetAnnotations(ctx context.Context, documentId string) ([]byte, error) {
	key := buildAnnotationsKey(documentId)

	pipe := redisCache.client.Pipeline()
	get := pipe.Get(ctx, key)
	pipe.Expire(ctx, key, cacheTTL)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	data, err := get.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrMiss
		}
		return nil, err
	}
	return data, nil
}

func (redisCache *RedisViewerCache) SetAnnotations(ctx context.Context, documentId string, data []byte) error {
	return redisCache.client.Set(ctx, buildAnnotationsKey(documentId), data, cacheTTL).Err()
}

func (redisCache *RedisViewerCache) GetLastPage(ctx context.Context, documentId string) (int, error) {
	return redisCache.getInt(ctx, buildLastPageKey(documentId), cacheTTL)
}

func (redisCache *RedisViewerCache) SetLastPage(ctx context.Context, documentId string, page int) error {
	return redisCache.client.Set(ctx, buildLastPageKey(documentId), page, cacheTTL).Err()
}

func (redisCache *RedisViewerCache) GetPageCount(ctx context.Context, documentId string) (int, error) {
	return redisCache.getInt(ctx, buildPageCountKey(documentId), pageCountTTL)
}

func (redisCache *RedisViewerCache) SetPageCount(ctx context.Context, documentId string, count int) error {
	return redisCache.client.Set(ctx, buildPageCountKey(documentId), count, pageCountTTL).Err()
}

func (redisCache *RedisViewerCache) getInt(ctx context.Context, key string, ttl time.Duration) (int, error) {
	val, err := redisCache.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, cache.ErrMiss
		}
		return 0, err
	}
	redisCache.client.Expire(ctx, key, ttl)
	return val, nil
}

func (redisCache *RedisViewerCache) InvalidateDocument(ctx context.Context, documentId string) error {
	return redisCache.client.Del(ctx,
		buildAnnotationsKey(documentId),
		buildLastPageKey(documentId),
		buildPageCountKey(documentId),
	).Err()
}
