package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"modguard/pkg/blob"
)

type fakeOracle struct {
	verdicts map[string]ScanResult
	err      error
}

func (f *fakeOracle) Scan(ctx context.Context, data []byte) (ScanResult, error) {
	if f.err != nil {
		return ScanResult{}, f.err
	}
	if v, ok := f.verdicts[string(data)]; ok {
		return v, nil
	}
	return ScanResult{Clean: true}, nil
}

func TestCollectStoresCleanItems(t *testing.T) {
	store := blob.NewMemory()
	collector, err := NewCollector(store, &fakeOracle{}, nil)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	payload := []byte("screenshot bytes")
	stored, failures := collector.Collect(context.Background(), "appeals/abc", []Item{
		{Filename: "shot.png", ContentType: "image/png", Data: payload},
	})

	if len(failures) != 0 {
		t.Fatalf("got failures %v, want none", failures)
	}
	if len(stored) != 1 {
		t.Fatalf("got %d stored items, want 1", len(stored))
	}

	d := stored[0]
	if !strings.HasPrefix(d.BlobPath, "mem://appeals/abc/") {
		t.Errorf("blob path %q missing key prefix", d.BlobPath)
	}
	sum := sha256.Sum256(payload)
	if d.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("sha256 = %q, want payload digest", d.SHA256)
	}
	if !d.ScanClean {
		t.Error("descriptor not marked scan-clean")
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d objects, want 1", store.Len())
	}
}

func TestCollectIsolatesFailures(t *testing.T) {
	store := blob.NewMemory()
	store.FailPut = func(key string) error {
		if strings.Contains(key, "appeals/fail") {
			return errors.New("bucket unavailable")
		}
		return nil
	}
	oracle := &fakeOracle{verdicts: map[string]ScanResult{
		"infected": {Clean: false, Threat: "EICAR-Test"},
	}}
	collector, err := NewCollector(store, oracle, nil)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	stored, failures := collector.Collect(context.Background(), "appeals/x", []Item{
		{Filename: "clean.txt", Data: []byte("fine")},
		{Filename: "virus.bin", Data: []byte("infected")},
		{Filename: "empty.txt"},
		{Filename: "also-clean.txt", Data: []byte("also fine")},
	})

	if len(stored) != 2 {
		t.Fatalf("got %d stored items %v, want 2", len(stored), stored)
	}
	if len(failures) != 2 {
		t.Fatalf("got failures %v, want 2", failures)
	}
	if failures[0].Index != 1 || !strings.Contains(failures[0].Reason, "EICAR-Test") {
		t.Errorf("first failure = %+v, want scan rejection of item 1", failures[0])
	}
	if failures[1].Index != 2 || !strings.Contains(failures[1].Reason, "empty") {
		t.Errorf("second failure = %+v, want empty-payload rejection of item 2", failures[1])
	}
}

func TestDiscardRemovesStoredBlobs(t *testing.T) {
	store := blob.NewMemory()
	collector, err := NewCollector(store, &fakeOracle{}, nil)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	stored, failures := collector.Collect(context.Background(), "appeals/z", []Item{
		{Filename: "a.png", ContentType: "image/png", Data: []byte("a")},
		{Filename: "b.png", ContentType: "image/png", Data: []byte("b")},
	})
	if len(failures) != 0 || len(stored) != 2 {
		t.Fatalf("got stored %v failures %v, want 2 stored", stored, failures)
	}
	if store.Len() != 2 {
		t.Fatalf("store holds %d objects, want 2", store.Len())
	}

	// The appeal these were collected for was rejected; nothing may be
	// left behind in the store.
	collector.Discard(context.Background(), stored)
	if store.Len() != 0 {
		t.Fatalf("store holds %d objects after discard, want 0", store.Len())
	}
}

func TestCollectStoreOutage(t *testing.T) {
	store := blob.NewMemory()
	store.FailPut = func(string) error { return errors.New("connection refused") }
	collector, err := NewCollector(store, &fakeOracle{}, nil)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	stored, failures := collector.Collect(context.Background(), "appeals/y", []Item{
		{Filename: "a.txt", Data: []byte("a")},
		{Filename: "b.txt", Data: []byte("b")},
	})

	if len(stored) != 0 {
		t.Fatalf("got stored %v, want none", stored)
	}
	if len(failures) != 2 {
		t.Fatalf("got %d failures, want 2", len(failures))
	}
	for _, f := range failures {
		if !strings.Contains(f.Reason, "store blob") {
			t.Errorf("failure reason %q missing store context", f.Reason)
		}
	}
}
