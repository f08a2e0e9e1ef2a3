package db

import (
	"context"
	"testing"
)

func TestOpenRejectsMalformedDSN(t *testing.T) {
	if _, err := Open(context.Background(), "://not-a-dsn"); err == nil {
		t.Fatal("expected an error for a malformed DSN")
	}
}

func TestMigrateNilPool(t *testing.T) {
	if err := Migrate(context.Background(), nil); err == nil {
		t.Fatal("expected an error for a nil pool")
	}
}
