// Package storage provides the key-value store plugins use to persist
// state. Data lives in one of four scopes: global, per account, per plugin,
// or per plugin within one account.
package storage

import (
	"context"
	"errors"
	"net/url"
	"time"
)

// Storage defines the key-value interface implemented by the backends.
type Storage interface {
	// Get retrieves data for a specific key within the given namespace.
	// Returns a nil StorageItem if the key doesn't exist or has expired.
	// Returns an error only for storage system failures.
	Get(ctx context.Context, key string, opts ...Option) (*StorageItem, error)

	// Set stores data for a specific key within the given namespace.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes data within the given namespace. Without WithKey the
	// entire namespace is removed.
	Delete(ctx context.Context, opts ...Option) error

	// Keys lists the live keys of the given namespace in lexical order.
	Keys(ctx context.Context, opts ...Option) ([]string, error)

	// Close closes the storage backend and releases resources.
	Close() error
}

// StorageItem represents a stored piece of data with metadata.
type StorageItem struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsExpired checks if the item has expired.
func (si *StorageItem) IsExpired() bool {
	return si.ExpiresAt != nil && time.Now().After(*si.ExpiresAt)
}

// Option configures storage operations.
type Option func(*Options)

// Options contains configuration for storage operations.
type Options struct {
	Namespace Namespace      // nil selects the global namespace
	Key       *string        // specific key for Delete
	TTL       *time.Duration // time-to-live for Set
}

// Apply folds opts into a fresh Options value.
func Apply(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Namespace identifies a storage scope. Only the types in this package
// implement it.
type Namespace interface {
	namespace()
}

// AccountNamespace holds data shared by every plugin of one account.
type AccountNamespace struct {
	AccountID string
}

func (AccountNamespace) namespace() {}

// PluginNamespace holds data of one plugin shared across accounts.
type PluginNamespace struct {
	Plugin string
}

func (PluginNamespace) namespace() {}

// AccountPluginNamespace holds data of one plugin for one account.
type AccountPluginNamespace struct {
	AccountID string
	Plugin    string
}

func (AccountPluginNamespace) namespace() {}

// WithAccount selects the account namespace.
func WithAccount(accountID string) Option {
	return func(opts *Options) {
		opts.Namespace = AccountNamespace{AccountID: accountID}
	}
}

// WithPlugin selects the plugin namespace.
func WithPlugin(plugin string) Option {
	return func(opts *Options) {
		opts.Namespace = PluginNamespace{Plugin: plugin}
	}
}

// WithAccountPlugin selects the per-account plugin namespace.
func WithAccountPlugin(accountID, plugin string) Option {
	return func(opts *Options) {
		opts.Namespace = AccountPluginNamespace{AccountID: accountID, Plugin: plugin}
	}
}

// WithKey specifies a specific key for Delete operations. If not provided,
// Delete removes the entire namespace.
func WithKey(key string) Option {
	return func(opts *Options) {
		opts.Key = &key
	}
}

// WithTTL sets a time-to-live for the stored data.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = &ttl
	}
}

// Prefix returns the key prefix backends use for namespace. Ids are
// query-escaped so they never contain ':' and no namespace's prefix can
// start another's.
func Prefix(namespace Namespace) string {
	switch ns := namespace.(type) {
	case AccountNamespace:
		return "account:" + url.QueryEscape(ns.AccountID) + ":key:"
	case PluginNamespace:
		return "plugin:" + url.QueryEscape(ns.Plugin) + ":key:"
	case AccountPluginNamespace:
		return "account:" + url.QueryEscape(ns.AccountID) + ":plugin:" + url.QueryEscape(ns.Plugin) + ":key:"
	default:
		return "global:key:"
	}
}

var (
	// ErrInvalidOptions is returned when incompatible options are provided.
	ErrInvalidOptions = errors.New("storage: invalid option combination")
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("storage: closed")
)
