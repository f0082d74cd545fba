package events

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"

	"github.com/tugasin/tugasin-blog/logger"
	"github.com/tugasin/tugasin-blog/types"
)

type ackRecorder struct {
	acked    int
	nacked   int
	requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}

type invalidations struct {
	posts   []string
	sitemap int
	count   int
	postErr error
}

func (i *invalidations) InvalidatePost(slug string) error {
	if i.postErr != nil {
		return i.postErr
	}
	i.posts = append(i.posts, slug)
	return nil
}

func (i *invalidations) InvalidateSitemap() error {
	i.sitemap++
	return nil
}

func (i *invalidations) InvalidateCount() error {
	i.count++
	return nil
}

func newTestConsumer(t *testing.T, inv Invalidator) *Consumer {
	t.Helper()

	c, err := NewConsumer(context.Background(), logger.NewZapWrapper(zap.NewNop()), nil,
		&types.EventsConfig{Enabled: true, URL: "amqp://localhost", Exchange: "cms.events", Queue: "q"}, inv)
	assert.NilError(t, err)
	return c
}

func delivery(body string, ack *ackRecorder) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, Body: []byte(body), RoutingKey: "post.updated"}
}

func TestHandlePostUpdated(t *testing.T) {
	inv := &invalidations{}
	ack := &ackRecorder{}

	newTestConsumer(t, inv).Handle(delivery(
		`{"type":"post.updated","payload":{"post_id":"1","slug":"judul-baru","previous_slug":"judul-lama"}}`, ack))

	assert.DeepEqual(t, inv.posts, []string{"judul-baru", "judul-lama"})
	assert.Equal(t, inv.sitemap, 1)
	assert.Equal(t, inv.count, 1)
	assert.Equal(t, ack.acked, 1)
	assert.Equal(t, ack.nacked, 0)
}

func TestHandleMalformed(t *testing.T) {
	inv := &invalidations{}
	ack := &ackRecorder{}

	c := newTestConsumer(t, inv)
	c.Handle(delivery(`{not json`, ack))
	c.Handle(delivery(`{"payload":{}}`, ack))

	assert.Equal(t, ack.nacked, 2)
	assert.Equal(t, ack.requeued, false)
	assert.Equal(t, inv.sitemap, 0)
}

func TestHandleUnknownType(t *testing.T) {
	inv := &invalidations{}
	ack := &ackRecorder{}

	newTestConsumer(t, inv).Handle(delivery(`{"type":"page.updated","payload":{"slug":"x"}}`, ack))

	assert.Equal(t, ack.acked, 1)
	assert.Equal(t, len(inv.posts), 0)
}

func TestHandleInvalidationFailureRequeuesOnce(t *testing.T) {
	inv := &invalidations{postErr: errors.New("redis down")}
	ack := &ackRecorder{}
	c := newTestConsumer(t, inv)

	d := delivery(`{"type":"post.deleted","payload":{"slug":"x"}}`, ack)
	c.Handle(d)
	assert.Equal(t, ack.requeued, true)

	d.Redelivered = true
	c.Handle(d)
	assert.Equal(t, ack.requeued, false)
	assert.Equal(t, ack.nacked, 2)
}

func TestNewConsumerDisabled(t *testing.T) {
	_, err := NewConsumer(context.Background(), logger.NewZapWrapper(zap.NewNop()), nil, &types.EventsConfig{}, &invalidations{})
	assert.Assert(t, errors.Is(err, types.ErrEventsIsDisabled))
}

func TestEventSlugs(t *testing.T) {
	e := PostEvent{Payload: PostPayload{Slug: "a", PreviousSlug: "a"}}
	assert.DeepEqual(t, e.Slugs(), []string{"a"})
}
