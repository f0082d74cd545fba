package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/tugasin/tugasin-blog/logger"
	"github.com/tugasin/tugasin-blog/types"
)

func newTestMetrics(t *testing.T) *PrometheusMetrics {
	t.Helper()
	m, err := NewPrometheusMetrics(logger.NewZapWrapper(zap.NewNop()), &types.MetricsConfig{
		Enabled: true,
		Config:  map[string]interface{}{"enable_go_metrics": false},
	})
	assert.NilError(t, err)
	return m
}

func TestCounterAccumulatesPerLabelSet(t *testing.T) {
	m := newTestMetrics(t)

	m.Counter("post_lookups_total", map[string]string{"state": "fresh"}).Inc()
	m.Counter("post_lookups_total", map[string]string{"state": "fresh"}).Add(2)
	m.Counter("post_lookups_total", map[string]string{"state": "miss"}).Inc()

	assert.Check(t, is.Equal(m.Counter("post_lookups_total", map[string]string{"state": "fresh"}).Get(), 3.0))
	assert.Check(t, is.Equal(m.Counter("post_lookups_total", map[string]string{"state": "miss"}).Get(), 1.0))
}

func TestMismatchedLabelsAreDropped(t *testing.T) {
	m := newTestMetrics(t)

	m.Counter("cms_requests_total", map[string]string{"operation": "posts", "result": "success"}).Inc()
	c := m.Counter("cms_requests_total", map[string]string{"operation": "posts"})
	c.Inc()
	assert.Check(t, is.Equal(c.Get(), 0.0))
}

func TestGaugeAndHistogram(t *testing.T) {
	m := newTestMetrics(t)

	g := m.Gauge("sitemap_posts", nil)
	g.Set(10)
	g.Inc()
	g.Add(-2)
	assert.Check(t, is.Equal(g.Get(), 9.0))

	h := m.Histogram("cms_request_duration_seconds", []float64{0.1, 1}, map[string]string{"operation": "posts"})
	h.Observe(0.5)
	h.ObserveDuration(time.Now())
	assert.Check(t, is.Equal(h.GetCount(), uint64(2)))
	assert.Check(t, h.GetSum() >= 0.5)
}

func TestHandlerExposesSeries(t *testing.T) {
	m := newTestMetrics(t)
	m.Counter("events_received_total", map[string]string{"type": "post.updated", "result": "ack"}).Inc()

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")
	m.Handler()(ctx)

	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusOK)
	body := string(ctx.Response.Body())
	assert.Check(t, strings.Contains(body, `tugasin_blog_events_received_total{result="ack",type="post.updated"} 1`), body)
	assert.Check(t, strings.HasPrefix(string(ctx.Response.Header.ContentType()), "text/plain"))
}

func TestLifecycle(t *testing.T) {
	m := newTestMetrics(t)
	assert.NilError(t, m.Start())
	assert.ErrorIs(t, m.Start(), types.ErrServerAlreadyRunning)
	assert.Check(t, m.IsRunning())
	assert.NilError(t, m.Stop())
	assert.ErrorIs(t, m.Stop(), types.ErrServerNotRunning)
}
