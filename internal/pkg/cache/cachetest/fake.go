// Package cachetest fornece um cache.Client em memória para testes.
package cachetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gomorgue/internal/pkg/cache"
)

// Fake guarda valores como string, como o Redis faz. TTLs são registrados mas não expiram.
type Fake struct {
	mu     sync.Mutex
	values map[string]string
	TTLs   map[string]time.Duration
	Err    error // quando definido, toda operação falha com ele
}

var _ cache.Client = (*Fake)(nil)

// New cria um Fake vazio.
func New() *Fake {
	return &Fake{values: map[string]string{}, TTLs: map[string]time.Duration{}}
}

func (f *Fake) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	v, ok := f.values[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (f *Fake) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	default:
		f.values[key] = fmt.Sprint(v)
	}
	f.TTLs[key] = expiration
	return nil
}

func (f *Fake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	delete(f.values, key)
	delete(f.TTLs, key)
	return nil
}

func (f *Fake) IncrWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	if _, ok := f.values[key]; !ok {
		f.values[key] = "0"
		f.TTLs[key] = window
	}
	n, _ := strconv.ParseInt(f.values[key], 10, 64)
	n++
	f.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

// Has informa se a chave está presente.
func (f *Fake) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}
