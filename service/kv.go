package service

import (
	"context"
	"errors"
	"time"

	"github.com/ggoodman/kritor-gateway/storage"
)

// ErrNoStorage is returned by KV operations when no backend is configured.
var ErrNoStorage = errors.New("service: no storage configured")

// KV is a storage view bound to one namespace.
type KV struct {
	s    storage.Storage
	opts []storage.Option
}

func (kv *KV) with(extra ...storage.Option) []storage.Option {
	out := make([]storage.Option, 0, len(kv.opts)+len(extra))
	out = append(out, kv.opts...)
	return append(out, extra...)
}

// Get returns the value stored under key. ok is false when it is absent or
// expired.
func (kv *KV) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	if kv.s == nil {
		return nil, false, ErrNoStorage
	}
	item, err := kv.s.Get(ctx, key, kv.opts...)
	if err != nil || item == nil {
		return nil, false, err
	}
	return item.Data, true, nil
}

// Set stores value under key. A positive ttl expires it.
func (kv *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if kv.s == nil {
		return ErrNoStorage
	}
	opts := kv.opts
	if ttl > 0 {
		opts = kv.with(storage.WithTTL(ttl))
	}
	return kv.s.Set(ctx, key, value, opts...)
}

func (kv *KV) Delete(ctx context.Context, key string) error {
	if kv.s == nil {
		return ErrNoStorage
	}
	return kv.s.Delete(ctx, kv.with(storage.WithKey(key))...)
}

// Keys lists the keys of the namespace in lexical order.
func (kv *KV) Keys(ctx context.Context) ([]string, error) {
	if kv.s == nil {
		return nil, ErrNoStorage
	}
	return kv.s.Keys(ctx, kv.opts...)
}
