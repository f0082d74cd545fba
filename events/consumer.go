package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

const (
	consumerTag    = "tugasin-blog"
	reconnectDelay = 5 * time.Second
)

// Invalidator is the cache surface events act on.
type Invalidator interface {
	InvalidatePost(slug string) error
	InvalidateSitemap() error
	InvalidateCount() error
}

// Consumer binds a durable queue to the CMS topic exchange and turns post events into cache
// invalidations. It reconnects until stopped.
type Consumer struct {
	ctx         context.Context
	cancel      context.CancelFunc
	config      *types.EventsConfig
	logger      types.Logger
	metrics     types.MetricsManager
	invalidator Invalidator
	state       atomic.Value
	done        chan struct{}

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewConsumer(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.EventsConfig, invalidator Invalidator) (*Consumer, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrEventsIsDisabled
	}

	consumerCtx, cancel := context.WithCancel(ctx)

	c := &Consumer{
		ctx:         consumerCtx,
		cancel:      cancel,
		config:      config,
		logger:      logger,
		metrics:     metrics,
		invalidator: invalidator,
		done:        make(chan struct{}),
	}
	c.state.Store(types.StateStopped)

	return c, nil
}

func (c *Consumer) Start() error {
	if !c.transitionState(types.StateStopped, types.StateStarting) {
		return types.ErrServiceIsRunning
	}

	deliveries, err := c.connect()
	if err != nil {
		c.setState(types.StateStopped)
		return err
	}

	go c.run(deliveries)

	c.setState(types.StateRunning)
	c.logger.Info("Events consumer started",
		zap.String("exchange", c.config.Exchange),
		zap.String("queue", c.config.Queue),
		zap.String("routing_key", c.config.RoutingKey))

	return nil
}

func (c *Consumer) Stop() error {
	if !c.transitionState(types.StateRunning, types.StateStopping) {
		return types.ErrServiceNotRunning
	}

	c.cancel()
	c.closeConn()
	<-c.done

	c.setState(types.StateStopped)
	c.logger.Info("Events consumer stopped")
	return nil
}

func (c *Consumer) IsRunning() bool {
	return c.getState() == types.StateRunning
}

func (c *Consumer) connect() (<-chan amqp.Delivery, error) {
	conn, err := amqp.Dial(c.config.URL)
	if err != nil {
		return nil, types.Errorf(types.ErrEventsConnectionFailed, "dial: %v", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, types.Errorf(types.ErrEventsConnectionFailed, "open channel: %v", err)
	}

	if err := ch.ExchangeDeclare(c.config.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, types.Errorf(types.ErrEventsConnectionFailed, "declare exchange: %v", err)
	}

	q, err := ch.QueueDeclare(c.config.Queue, true, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, types.Errorf(types.ErrEventsConnectionFailed, "declare queue: %v", err)
	}

	routingKey := c.config.RoutingKey
	if routingKey == "" {
		routingKey = "post.*"
	}
	if err := ch.QueueBind(q.Name, routingKey, c.config.Exchange, false, nil); err != nil {
		_ = conn.Close()
		return nil, types.Errorf(types.ErrEventsConnectionFailed, "bind queue: %v", err)
	}

	deliveries, err := ch.Consume(q.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, types.Errorf(types.ErrEventsConnectionFailed, "consume: %v", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	return deliveries, nil
}

func (c *Consumer) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Consumer) run(deliveries <-chan amqp.Delivery) {
	defer close(c.done)

	for {
		for d := range deliveries {
			c.Handle(d)
		}

		if c.ctx.Err() != nil {
			return
		}

		c.logger.Warn("Delivery channel closed, reconnecting", zap.Duration("delay", reconnectDelay))
		c.closeConn()

		for {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}

			next, err := c.connect()
			if err != nil {
				c.logger.Error("Events reconnect failed", zap.Error(err))
				continue
			}
			deliveries = next
			c.logger.Info("Events consumer reconnected")
			break
		}
	}
}

// Handle processes one delivery. Malformed bodies are dropped without requeue, unknown event types
// are acknowledged and ignored, and invalidation failures are requeued once.
func (c *Consumer) Handle(d amqp.Delivery) {
	var event PostEvent
	err := utils.Unmarshal(d.Body, &event)
	if err != nil || event.Type == "" {
		c.logger.Error("Malformed event", zap.String("routing_key", d.RoutingKey), zap.Error(err))
		c.count("unknown", "malformed")
		_ = d.Nack(false, false)
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if !isPostEvent(event.Type) {
		c.logger.Debug("Ignoring event", zap.String("type", event.Type), zap.String("event_id", event.ID))
		c.count(event.Type, "ignored")
		_ = d.Ack(false)
		return
	}

	if err := c.apply(event); err != nil {
		c.logger.Error("Failed to apply event",
			zap.String("type", event.Type), zap.String("event_id", event.ID), zap.Error(err))
		c.count(event.Type, "error")
		_ = d.Nack(false, !d.Redelivered)
		return
	}

	c.logger.Info("Event applied",
		zap.String("type", event.Type),
		zap.String("event_id", event.ID),
		zap.Strings("slugs", event.Slugs()))
	c.count(event.Type, "success")

	if err := d.Ack(false); err != nil {
		c.logger.Error("Failed to ack event", zap.String("event_id", event.ID), zap.Error(err))
	}
}

func (c *Consumer) apply(event PostEvent) error {
	for _, slug := range event.Slugs() {
		if err := c.invalidator.InvalidatePost(slug); err != nil {
			return err
		}
	}

	if err := c.invalidator.InvalidateSitemap(); err != nil {
		return err
	}

	return c.invalidator.InvalidateCount()
}

func (c *Consumer) count(eventType, result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Counter("events_received_total", map[string]string{"type": eventType, "result": result}).Inc()
}

func (c *Consumer) transitionState(from, to types.State) bool {
	return c.state.CompareAndSwap(from, to)
}

func (c *Consumer) setState(state types.State) {
	c.state.Store(state)
}

func (c *Consumer) getState() types.State {
	return c.state.Load().(types.State)
}
