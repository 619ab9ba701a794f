// Package cache keeps the Redis tag index behind the read-side query cache.
// Readers record each cached view with Track under the tags it depends on.
// Writers call Invalidate with the tags a mutation made stale, and every
// process running Subscribe hears about it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/neomorfeo/orgstate/internal/domain"
)

// Compile-time check: TagInvalidator implements domain.Invalidator.
var _ domain.Invalidator = (*TagInvalidator)(nil)

const (
	defaultChannel = "orgstate:invalidations"
	tagKeyPrefix   = "tag:"
)

// Message is published on the invalidation channel after the tagged keys
// have been deleted, so process-local caches can drop their copies too.
type Message struct {
	Tags      []string `json:"tags"`
	Timestamp int64    `json:"timestamp"`
}

// TagInvalidator keeps a Redis set per cache tag listing the cache keys
// built from views under that tag. Invalidating a tag deletes those keys
// and the set, then announces the tags on a Pub/Sub channel.
type TagInvalidator struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// Option is a functional option for configuring the invalidator.
type Option func(*TagInvalidator)

// WithChannel sets the Pub/Sub channel name.
func WithChannel(channel string) Option {
	return func(i *TagInvalidator) {
		if channel != "" {
			i.channel = channel
		}
	}
}

// WithLogger sets the logger for the invalidator.
func WithLogger(logger *zap.Logger) Option {
	return func(i *TagInvalidator) {
		i.logger = logger
	}
}

// New creates an invalidator over an existing client. The caller keeps
// ownership of the client.
func New(client *redis.Client, opts ...Option) *TagInvalidator {
	i := &TagInvalidator{
		client:  client,
		channel: defaultChannel,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func tagKey(tag domain.CacheTag) string {
	return tagKeyPrefix + string(tag)
}

// Track records that cacheKey holds a view covered by each of tags.
func (i *TagInvalidator) Track(ctx context.Context, cacheKey string, tags []domain.CacheTag) error {
	_, err := i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tag := range tags {
			pipe.SAdd(ctx, tagKey(tag), cacheKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tracking %q: %w", cacheKey, err)
	}
	return nil
}

// Invalidate deletes every cache key tracked under tags and publishes a
// Message. Each tag set is read and removed in one MULTI block, so a key
// tracked concurrently lands either in this round or in a fresh set. A
// failing tag does not stop the others and the Message is always sent.
func (i *TagInvalidator) Invalidate(ctx context.Context, tags []domain.CacheTag) error {
	if len(tags) == 0 {
		return nil
	}

	var (
		keys []string
		errs []error
	)
	for _, tag := range tags {
		members, err := i.drainTag(ctx, tag)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		keys = append(keys, members...)
	}

	if len(keys) > 0 {
		if err := i.client.Unlink(ctx, keys...).Err(); err != nil {
			errs = append(errs, fmt.Errorf("deleting tagged keys: %w", err))
		}
	}

	if err := i.publish(ctx, tags); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		i.logger.Warn("cache invalidation incomplete",
			zap.Strings("tags", domain.TagStrings(tags)),
			zap.Int("keys", len(keys)),
			zap.Error(err))
		return err
	}

	i.logger.Debug("invalidated cache tags",
		zap.Strings("tags", domain.TagStrings(tags)),
		zap.Int("keys", len(keys)),
		zap.String("channel", i.channel))
	return nil
}

// drainTag returns the members of tag's set and deletes the set atomically.
func (i *TagInvalidator) drainTag(ctx context.Context, tag domain.CacheTag) ([]string, error) {
	var members *redis.StringSliceCmd
	_, err := i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members = pipe.SMembers(ctx, tagKey(tag))
		pipe.Unlink(ctx, tagKey(tag))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading tag %q: %w", tag, err)
	}
	return members.Val(), nil
}

func (i *TagInvalidator) publish(ctx context.Context, tags []domain.CacheTag) error {
	data, err := json.Marshal(Message{Tags: domain.TagStrings(tags), Timestamp: time.Now().UnixNano()})
	if err != nil {
		return fmt.Errorf("marshaling invalidation message: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return nil
}

// Subscribe calls fn for every invalidation message until ctx is done.
func (i *TagInvalidator) Subscribe(ctx context.Context, fn func(Message)) error {
	pubsub := i.client.Subscribe(ctx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %q: %w", i.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				i.logger.Warn("dropping malformed invalidation message",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			fn(m)
		}
	}
}
