package utils

import (
	"bytes"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/tugasin/tugasin-blog/types"
)

type bufferPool struct {
	pool sync.Pool
}

func (p *bufferPool) get() *bytes.Buffer {
	if buf := p.pool.Get(); buf != nil {
		return buf.(*bytes.Buffer)
	}
	return bytes.NewBuffer(make([]byte, 0, 1024))
}

func (p *bufferPool) put(buf *bytes.Buffer) {
	buf.Reset()
	if buf.Cap() < 64*1024 {
		p.pool.Put(buf)
	}
}

var jsonPool = &bufferPool{}

func Marshal(data interface{}) ([]byte, error) {
	buf := jsonPool.get()
	defer jsonPool.put(buf)

	if err := sonic.ConfigStd.NewEncoder(buf).Encode(data); err != nil {
		return nil, err
	}

	// Encoder appends a newline.
	out := bytes.TrimRight(buf.Bytes(), "\n")
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

func Unmarshal[T any](data []byte, target *T) error {
	return sonic.ConfigStd.Unmarshal(data, target)
}

// UnmarshalConfig decodes a free-form component config (usually a yaml map) into target.
func UnmarshalConfig[T any](config interface{}, target *T) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if typed, ok := config.(*T); ok {
		*target = *typed
		return nil
	}
	if typed, ok := config.(T); ok {
		*target = typed
		return nil
	}

	configBytes, err := sonic.ConfigStd.Marshal(config)
	if err != nil {
		return types.WrapError(err, "failed to encode config")
	}

	return sonic.ConfigStd.Unmarshal(configBytes, target)
}
