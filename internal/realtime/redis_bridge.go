package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRedisChannel   = "swapcircle:realtime"
	redisPublishTimeout   = 2 * time.Second
	redisPingTimeout      = 2 * time.Second
	redisDialTimeout      = 5 * time.Second
	redisReadWriteTimeout = 2 * time.Second
	redisOutboxSize       = 256
)

var (
	errMissingRedisClient = errors.New("realtime: redis client required")
	errMissingLocal       = errors.New("realtime: local publisher required")
)

// RedisOptions configures the shared redis connection.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient opens a redis client and verifies it with a ping.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if strings.TrimSpace(opts.Address) == "" {
		return nil, fmt.Errorf("realtime: redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisReadWriteTimeout,
		WriteTimeout: redisReadWriteTimeout,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisBridgeConfig describes a bridge between the local dispatcher and a
// redis pub/sub channel shared by every API instance.
type RedisBridgeConfig struct {
	Client  *redis.Client
	Channel string
	Local   Publisher
	Logger  *zap.Logger
}

// RedisBridge delivers messages locally and republishes them so that users
// connected to other instances observe the same events. Remote publishing runs
// on the Run goroutine through a bounded outbox; when redis falls behind the
// outbox drops messages instead of stalling callers.
type RedisBridge struct {
	client  *redis.Client
	channel string
	local   Publisher
	origin  string
	logger  *zap.Logger
	outbox  chan string
	send    func(ctx context.Context, payload string) error
}

type bridgeEnvelope struct {
	Origin  string  `json:"origin"`
	Message Message `json:"message"`
}

func NewRedisBridge(cfg RedisBridgeConfig) (*RedisBridge, error) {
	if cfg.Client == nil {
		return nil, errMissingRedisClient
	}
	if cfg.Local == nil {
		return nil, errMissingLocal
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = defaultRedisChannel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.Client
	return &RedisBridge{
		client:  client,
		channel: channel,
		local:   cfg.Local,
		origin:  uuid.NewString(),
		logger:  logger,
		outbox:  make(chan string, redisOutboxSize),
		send: func(ctx context.Context, payload string) error {
			return client.Publish(ctx, channel, payload).Err()
		},
	}, nil
}

func (b *RedisBridge) Publish(message Message) {
	b.local.Publish(message)

	payload, err := encodeEnvelope(bridgeEnvelope{Origin: b.origin, Message: message})
	if err != nil {
		b.logger.Warn("realtime envelope encode failed", zap.Error(err))
		return
	}
	select {
	case b.outbox <- payload:
	default:
		b.logger.Warn("realtime redis outbox full, dropping message",
			zap.String("user_id", message.UserID),
			zap.String("event_type", message.EventType))
	}
}

// Run forwards the outbox to redis and relays messages published by other
// instances until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	go b.forward(ctx)

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("realtime redis bridge subscribed", zap.String("channel", b.channel))

	incoming := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			b.relay(msg.Payload)
		}
	}
}

func (b *RedisBridge) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-b.outbox:
			publishCtx, cancel := context.WithTimeout(ctx, redisPublishTimeout)
			err := b.send(publishCtx, payload)
			cancel()
			if err != nil && ctx.Err() == nil {
				b.logger.Warn("realtime redis publish failed",
					zap.String("channel", b.channel),
					zap.Error(err))
			}
		}
	}
}

func (b *RedisBridge) relay(payload string) {
	envelope, err := decodeEnvelope(payload)
	if err != nil {
		b.logger.Warn("realtime envelope decode failed", zap.Error(err))
		return
	}
	if envelope.Origin == b.origin {
		return
	}
	b.local.Publish(envelope.Message)
}

func encodeEnvelope(envelope bridgeEnvelope) (string, error) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeEnvelope(payload string) (bridgeEnvelope, error) {
	var envelope bridgeEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return bridgeEnvelope{}, err
	}
	if envelope.Message.UserID == "" || envelope.Message.EventType == "" {
		return bridgeEnvelope{}, fmt.Errorf("realtime: envelope missing user or event type")
	}
	return envelope, nil
}
