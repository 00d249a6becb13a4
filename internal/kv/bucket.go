// Package kv provides small named key-value buckets with SQLite persistence
// and an in-memory variant. Values are stored as JSON.
package kv

import "errors"

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("kv: key not found")

// Bucket is the interface for key-value storage operations.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// Put stores value under key, replacing any previous value.
	Put(key string, value any) error

	// Get decodes the value stored under key into out.
	// Returns ErrNotFound when the key is absent.
	Get(key string, out any) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key string) error
}
