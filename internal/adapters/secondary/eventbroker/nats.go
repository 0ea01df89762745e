package eventbroker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jupiterclapton/postfeed/internal/adapters/dto"
	"github.com/jupiterclapton/postfeed/internal/core/domain"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

// PostsSubject carries encoded post frames between instances.
const PostsSubject = "posts"

// NatsRelay publishes post events to NATS and forwards every received frame to the local hub,
// so clients connected to any instance see every change.
type NatsRelay struct {
	nc     *nats.Conn
	hub    *Hub
	sub    *nats.Subscription
	logger *slog.Logger
}

var _ ports.EventPublisher = (*NatsRelay)(nil)

func NewNatsRelay(nc *nats.Conn, hub *Hub, logger *slog.Logger) *NatsRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &NatsRelay{nc: nc, hub: hub, logger: logger}
}

// Start subscribes to PostsSubject.
func (r *NatsRelay) Start() error {
	sub, err := r.nc.Subscribe(PostsSubject, r.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", PostsSubject, err)
	}
	r.sub = sub
	return nil
}

func (r *NatsRelay) PublishPostEvent(ctx context.Context, event domain.PostEvent) error {
	data, err := dto.EncodePostEvent(event)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: PostsSubject,
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	r.logger.Debug("publishing post event", "subject", msg.Subject, "action", event.Action, "post_id", event.PostID)
	return r.nc.PublishMsg(msg)
}

func (r *NatsRelay) handle(msg *nats.Msg) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
	_, span := otel.Tracer("postfeed").Start(ctx, "relay_post_event", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	r.hub.Broadcast(msg.Data)
}

// Close unsubscribes and drains the connection.
func (r *NatsRelay) Close() error {
	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			r.logger.Warn("nats unsubscribe failed", "error", err)
		}
	}
	return r.nc.Drain()
}
