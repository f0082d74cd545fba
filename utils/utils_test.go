package utils

import (
	"testing"

	"github.com/valyala/fasthttp"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type sampleConfig struct {
	Addr     string `json:"addr"`
	PoolSize int    `json:"pool_size"`
}

func TestUnmarshalConfigFromMap(t *testing.T) {
	var cfg sampleConfig
	err := UnmarshalConfig(map[string]interface{}{"addr": "localhost:6379", "pool_size": 5}, &cfg)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(cfg.Addr, "localhost:6379"))
	assert.Check(t, is.Equal(cfg.PoolSize, 5))
}

func TestUnmarshalConfigTyped(t *testing.T) {
	var cfg sampleConfig
	err := UnmarshalConfig(&sampleConfig{Addr: "x"}, &cfg)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(cfg.Addr, "x"))
}

func TestUnmarshalConfigNil(t *testing.T) {
	var cfg sampleConfig
	assert.Check(t, UnmarshalConfig(nil, &cfg) != nil)
}

func TestMarshalHasNoTrailingNewline(t *testing.T) {
	out, err := Marshal(map[string]int{"a": 1})
	assert.NilError(t, err)
	assert.Equal(t, string(out), `{"a":1}`)
}

func TestWriteError(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	WriteError(ctx, fasthttp.StatusBadRequest, "Invalid page number")

	assert.Equal(t, ctx.Response.StatusCode(), fasthttp.StatusBadRequest)
	assert.Equal(t, string(ctx.Response.Body()), `{"error":"Bad Request","message":"Invalid page number"}`)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, FirstNonEmpty("", "  ", "b", "c"), "b")
	assert.Equal(t, FirstNonEmpty(), "")
}
