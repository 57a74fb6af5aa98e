package errctx

import (
	"context"
	"net/http"
	"sync"
)

type info struct {
	mu      sync.Mutex
	data    map[string]interface{}
	request *http.Request
}

func (i *info) set(key string, value interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.data[key] = value
}

func (i *info) setRequest(req *http.Request) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.request = req
}

func (i *info) snapshot() (map[string]interface{}, *http.Request) {
	i.mu.Lock()
	defer i.mu.Unlock()
	data := make(map[string]interface{}, len(i.data))
	for k, v := range i.data {
		data[k] = v
	}
	return data, i.request
}

func withInfo(ctx context.Context) context.Context {
	if _, ok := infoFromContext(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, infoKey, &info{data: make(map[string]interface{})})
}

func infoFromContext(ctx context.Context) (*info, bool) {
	i, ok := ctx.Value(infoKey).(*info)
	return i, ok
}

type key int

const (
	infoKey key = iota
)
