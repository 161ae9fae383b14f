// Package bus links region processes over redis pub/sub. Each process
// listens on its own channel; requests carry a private reply channel.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gridbank.ai/internal/syncmsg"
)

const (
	channelPrefix = "gridbank:proc:"
	replyPrefix   = "gridbank:reply:"

	DefaultRequestTimeout = 5 * time.Second
)

var (
	// ErrNoReceiver means nothing was subscribed on the target channel.
	ErrNoReceiver = errors.New("bus: no receiver")
	ErrClosed     = errors.New("bus: closed")
)

// RemoteError is a failure reported by the process that handled a request.
type RemoteError struct {
	Process string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bus: %s: %s", e.Process, e.Message)
}

// Handler serves messages addressed to this process.
type Handler interface {
	Handle(ctx context.Context, msg syncmsg.Message) (*syncmsg.Response, error)
}

type envelope struct {
	ID      string          `cbor:"ID"`
	From    string          `cbor:"From"`
	ReplyTo string          `cbor:"ReplyTo,omitempty"`
	Message syncmsg.Message `cbor:"Message"`
}

type reply struct {
	ID       string            `cbor:"ID"`
	Response *syncmsg.Response `cbor:"Response,omitempty"`
	Error    string            `cbor:"Error,omitempty"`
	NoRegion bool              `cbor:"NoRegion,omitempty"`
}

type Options struct {
	Client  redis.UniversalClient
	Process string
	Handler Handler
	// RequestTimeout bounds Request when ctx has no earlier deadline.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type Stats struct {
	Sent     atomic.Int64
	Received atomic.Int64
	Replies  atomic.Int64
	Dropped  atomic.Int64
}

type Bus struct {
	rdb     redis.UniversalClient
	self    string
	handler Handler
	timeout time.Duration
	log     *zap.Logger

	stats Stats

	readyOnce sync.Once
	ready     chan struct{}
}

func New(opts Options) (*Bus, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("bus: nil redis client")
	}
	if opts.Process == "" {
		return nil, fmt.Errorf("bus: empty process id")
	}
	b := &Bus{
		rdb:     opts.Client,
		self:    opts.Process,
		handler: opts.Handler,
		timeout: opts.RequestTimeout,
		log:     opts.Logger,
		ready:   make(chan struct{}),
	}
	if b.timeout <= 0 {
		b.timeout = DefaultRequestTimeout
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	return b, nil
}

func Channel(process string) string { return channelPrefix + process }

func (b *Bus) Process() string { return b.self }

func (b *Bus) Stats() *Stats { return &b.stats }

// Ready is closed once Run has subscribed.
func (b *Bus) Ready() <-chan struct{} { return b.ready }

// Run serves inbound messages until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, Channel(b.self))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel(b.self), err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.log.Info("bus listening", zap.String("channel", Channel(b.self)))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			b.serve(ctx, []byte(m.Payload))
		}
	}
}

func (b *Bus) serve(ctx context.Context, payload []byte) {
	var env envelope
	if err := unmarshal(payload, &env); err != nil {
		b.stats.Dropped.Add(1)
		b.log.Warn("bus message undecodable", zap.Error(err))
		return
	}
	b.stats.Received.Add(1)
	if b.handler == nil {
		return
	}
	resp, err := b.handler.Handle(ctx, env.Message)
	if env.ReplyTo == "" {
		if err != nil {
			b.log.Warn("bus message failed",
				zap.String("method", env.Message.Method),
				zap.String("from", env.From),
				zap.Error(err))
		}
		return
	}

	r := reply{ID: env.ID, Response: resp}
	if err != nil {
		r.Error = err.Error()
		r.NoRegion = errors.Is(err, syncmsg.ErrNoRegion)
	}
	data, merr := marshal(r)
	if merr != nil {
		b.log.Error("encode reply", zap.Error(merr))
		return
	}
	if perr := b.rdb.Publish(ctx, env.ReplyTo, data).Err(); perr != nil {
		b.log.Warn("publish reply failed", zap.String("to", env.ReplyTo), zap.Error(perr))
		return
	}
	b.stats.Replies.Add(1)
}

func (b *Bus) publish(ctx context.Context, process string, env envelope) error {
	data, err := marshal(env)
	if err != nil {
		return err
	}
	n, err := b.rdb.Publish(ctx, Channel(process), data).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w on %s", ErrNoReceiver, Channel(process))
	}
	b.stats.Sent.Add(1)
	return nil
}

// Send delivers msg to process without waiting for an answer.
func (b *Bus) Send(ctx context.Context, process string, msg syncmsg.Message) error {
	return b.publish(ctx, process, envelope{ID: uuid.NewString(), From: b.self, Message: msg})
}

// Request delivers msg and waits for the reply.
func (b *Bus) Request(ctx context.Context, process string, msg syncmsg.Message) (*syncmsg.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	id := uuid.NewString()
	replyTo := replyPrefix + b.self + ":" + id
	sub := b.rdb.Subscribe(ctx, replyTo)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe reply: %w", err)
	}

	if err := b.publish(ctx, process, envelope{ID: id, From: b.self, ReplyTo: replyTo, Message: msg}); err != nil {
		return nil, err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil, ErrClosed
			}
			var r reply
			if err := unmarshal([]byte(m.Payload), &r); err != nil {
				return nil, fmt.Errorf("decode reply: %w", err)
			}
			if r.ID != id {
				continue
			}
			if r.NoRegion {
				return nil, fmt.Errorf("%s: %w", process, syncmsg.ErrNoRegion)
			}
			if r.Error != "" {
				return nil, &RemoteError{Process: process, Message: r.Error}
			}
			return r.Response, nil
		}
	}
}

var _ syncmsg.Sender = (*Bus)(nil)
