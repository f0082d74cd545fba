package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"

	"github.com/tugasin/tugasin-blog/cron"
	"github.com/tugasin/tugasin-blog/types"
)

func componentNames(s *Service) []string {
	names := make([]string, 0, len(s.components))
	for _, c := range s.components {
		names = append(names, c.name)
	}
	return names
}

func TestNewServiceDefaults(t *testing.T) {
	svc, err := NewService(context.Background(), "")
	assert.NilError(t, err)
	defer svc.cancel()

	assert.DeepEqual(t, componentNames(svc), []string{"metrics", "cache", "health", "cron", "http"})
	assert.Assert(t, !svc.IsRunning())
	assert.ErrorIs(t, svc.Stop(), types.ErrServiceNotRunning)
}

func TestNewServiceFromFile(t *testing.T) {
	file := fs.NewFile(t, "config", fs.WithContent(`
name: tugasin-blog
version: "1.2.3"
server:
  http:
    host: 127.0.0.1
    port: 18080
metrics:
  enabled: false
cron:
  enabled: false
health:
  enabled: false
`))
	defer file.Remove()

	svc, err := NewService(context.Background(), file.Path())
	assert.NilError(t, err)
	defer svc.cancel()

	assert.DeepEqual(t, componentNames(svc), []string{"cache", "http"})
	assert.Equal(t, svc.config.GetConfig().Version, "1.2.3")
}

func TestNewServiceMissingFile(t *testing.T) {
	_, err := NewService(context.Background(), "/nonexistent/config.yml")
	assert.ErrorIs(t, err, types.ErrConfigInvalidPath)
}

func TestCMSAvailabilityJobProbesEveryRun(t *testing.T) {
	var up atomic.Bool
	var probes atomic.Int32
	cmsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		if !up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"posts":[],"pagination":{"page":1,"limit":1,"total":0}}}`))
	}))
	defer cmsServer.Close()

	file := fs.NewFile(t, "config", fs.WithContent(`
name: tugasin-blog
version: "1.0.0"
server:
  http:
    host: 127.0.0.1
    port: 18081
cms:
  endpoint: `+cmsServer.URL+`
  max_attempts: 1
metrics:
  enabled: false
health:
  enabled: false
cron:
  enabled: true
  timezone: UTC
`))
	defer file.Remove()

	svc, err := NewService(context.Background(), file.Path())
	assert.NilError(t, err)
	defer svc.cancel()

	assert.NilError(t, svc.cron.RunNow(cron.JobCMSAvailability))
	status := svc.blog.GetCMSStatus()
	assert.Assert(t, status.Available != nil)
	assert.Check(t, !*status.Available)

	up.Store(true)

	assert.NilError(t, svc.cron.RunNow(cron.JobCMSAvailability))
	status = svc.blog.GetCMSStatus()
	assert.Assert(t, status.Available != nil)
	assert.Check(t, *status.Available)
	assert.Equal(t, probes.Load(), int32(2))
}
