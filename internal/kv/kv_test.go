package kv

import (
	"errors"
	"testing"

	"github.com/dokzlo13/padd/internal/db"
)

func buckets(t *testing.T) []Bucket {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() err = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return []Bucket{
		NewMemoryBucket("session"),
		NewSQLiteBucket(database.DB, "session"),
	}
}

func TestBucket_PutGetDelete(t *testing.T) {
	for _, b := range buckets(t) {
		t.Run(b.Name(), func(t *testing.T) {
			var got string
			if err := b.Get("last_address", &got); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get() on empty bucket err = %v, want ErrNotFound", err)
			}

			if err := b.Put("last_address", "http://10.0.0.7"); err != nil {
				t.Fatalf("Put() err = %v", err)
			}
			if err := b.Put("last_address", "http://10.0.0.8"); err != nil {
				t.Fatalf("Put() overwrite err = %v", err)
			}
			if err := b.Get("last_address", &got); err != nil || got != "http://10.0.0.8" {
				t.Fatalf("Get() = %q, %v", got, err)
			}

			if err := b.Delete("last_address"); err != nil {
				t.Fatalf("Delete() err = %v", err)
			}
			if err := b.Get("last_address", &got); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get() after delete err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSQLiteBucket_Isolation(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() err = %v", err)
	}
	defer database.Close()

	a := NewSQLiteBucket(database.DB, "a")
	b := NewSQLiteBucket(database.DB, "b")
	if err := a.Put("k", 1); err != nil {
		t.Fatal(err)
	}
	var v int
	if err := b.Get("k", &v); !errors.Is(err, ErrNotFound) {
		t.Errorf("bucket b sees bucket a's key: err = %v", err)
	}
}
