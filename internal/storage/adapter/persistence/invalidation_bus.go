package persistence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/logger"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/cache"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	kindCollection = "collection"
	kindKey        = "key"

	outboxSize     = 256
	publishTimeout = 2 * time.Second
)

type invalidationMessage struct {
	Origin string `json:"origin"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// CacheInvalidationBus fans cache invalidations out to every process sharing
// the redis channel, and applies the ones other processes publish.
type CacheInvalidationBus struct {
	client  *redis.Client
	channel string
	origin  string
	objects *cache.ObjectCache
	queries *cache.QueryCache
	logger  logger.Logger

	outbox    chan invalidationMessage
	done      chan struct{}
	pubsub    *redis.PubSub
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ cache.Notifier = (*CacheInvalidationBus)(nil)

// NewCacheInvalidationBus creates a bus. Nothing is sent or received until Start.
func NewCacheInvalidationBus(client *redis.Client, channel string, objects *cache.ObjectCache, queries *cache.QueryCache, log logger.Logger) *CacheInvalidationBus {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &CacheInvalidationBus{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		objects: objects,
		queries: queries,
		logger:  log.WithComponent("cache-invalidation-bus"),
		outbox:  make(chan invalidationMessage, outboxSize),
		done:    make(chan struct{}),
	}
}

// Start subscribes to the channel and registers the bus as the caches'
// notifier.
func (b *CacheInvalidationBus) Start(ctx context.Context) error {
	b.pubsub = b.client.Subscribe(ctx, b.channel)
	if _, err := b.pubsub.Receive(ctx); err != nil {
		_ = b.pubsub.Close()
		return err
	}

	b.wg.Add(2)
	go b.receiveLoop(b.pubsub.Channel())
	go b.sendLoop()

	b.objects.SetNotifier(b)
	b.queries.SetNotifier(b)
	b.logger.WithFields(map[string]interface{}{"channel": b.channel}).Info("Cache invalidation bus started")
	return nil
}

// CollectionInvalidated implements cache.Notifier.
func (b *CacheInvalidationBus) CollectionInvalidated(collection string) {
	b.enqueue(invalidationMessage{Origin: b.origin, Kind: kindCollection, Target: collection})
}

// KeyDeleted implements cache.Notifier.
func (b *CacheInvalidationBus) KeyDeleted(key string) {
	b.enqueue(invalidationMessage{Origin: b.origin, Kind: kindKey, Target: key})
}

// enqueue never blocks the caller. When the outbox is full the message is
// dropped; peers still converge through the cache TTL.
func (b *CacheInvalidationBus) enqueue(msg invalidationMessage) {
	select {
	case <-b.done:
	case b.outbox <- msg:
	default:
		b.logger.Warnf("Invalidation outbox full, dropping %s %s", msg.Kind, msg.Target)
	}
}

func (b *CacheInvalidationBus) sendLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case msg := <-b.outbox:
			b.publish(msg)
		}
	}
}

func (b *CacheInvalidationBus) publish(msg invalidationMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Errorf("Failed to encode invalidation: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.WithFields(map[string]interface{}{
			"kind":   msg.Kind,
			"target": msg.Target,
		}).Warnf("Failed to publish invalidation: %v", err)
	}
}

func (b *CacheInvalidationBus) receiveLoop(ch <-chan *redis.Message) {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			b.apply(m.Payload)
		}
	}
}

// apply handles one payload from the channel. Messages this process published
// are ignored; it already applied them locally.
func (b *CacheInvalidationBus) apply(payload string) {
	var msg invalidationMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.logger.Warnf("Ignoring malformed invalidation: %v", err)
		return
	}
	if msg.Origin == b.origin {
		return
	}
	switch msg.Kind {
	case kindCollection:
		n := b.queries.InvalidateCollectionLocal(msg.Target)
		b.logger.Debugf("Peer invalidated %s, dropped %d query results", msg.Target, n)
	case kindKey:
		b.objects.DeleteLocal(msg.Target)
	default:
		b.logger.Warnf("Ignoring invalidation of unknown kind %q", msg.Kind)
	}
}

// Close stops both loops and unsubscribes. Safe to call more than once.
func (b *CacheInvalidationBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		if b.pubsub != nil {
			err = b.pubsub.Close()
		}
		b.wg.Wait()
	})
	return err
}
