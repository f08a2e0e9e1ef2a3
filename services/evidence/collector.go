package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"modguard/pkg/blob"
	"modguard/services/cases"
)

// itemTimeout bounds the blob and scan calls for a single evidence item.
const itemTimeout = 30 * time.Second

// maxItemSize caps a single evidence upload.
const maxItemSize = 25 << 20

// ScanResult is the virus-scan verdict for one payload.
type ScanResult struct {
	Clean  bool
	Threat string
}

// Oracle is the external virus-scan collaborator.
type Oracle interface {
	Scan(ctx context.Context, data []byte) (ScanResult, error)
}

// Item is one evidence payload submitted with an appeal.
type Item struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ItemFailure reports why one submitted item was not stored. Failures are
// isolated per item; the remaining items still go through.
type ItemFailure struct {
	Index    int    `json:"index"`
	Filename string `json:"filename,omitempty"`
	Reason   string `json:"reason"`
}

// Collector scans and stores appeal evidence. Blob-store trouble never
// propagates into the case transaction: the caller attaches only the
// descriptors of successfully stored items.
type Collector struct {
	store  blob.Store
	oracle Oracle
	logger *log.Logger
}

// NewCollector constructs a Collector.
func NewCollector(store blob.Store, oracle Oracle, logger *log.Logger) (*Collector, error) {
	if store == nil {
		return nil, errors.New("evidence: store is required")
	}
	if oracle == nil {
		return nil, errors.New("evidence: scan oracle is required")
	}
	return &Collector{store: store, oracle: oracle, logger: logger}, nil
}

// Collect scans and stores each item under keyPrefix. It returns the
// descriptors of stored items and a failure entry for each rejected one;
// it never returns an error for individual items.
func (c *Collector) Collect(ctx context.Context, keyPrefix string, items []Item) ([]cases.EvidenceDescriptor, []ItemFailure) {
	var stored []cases.EvidenceDescriptor
	var failures []ItemFailure

	for i, item := range items {
		descriptor, err := c.collectOne(ctx, keyPrefix, item)
		if err != nil {
			c.logf("WARN evidence item %d (%s) rejected: %v", i, item.Filename, err)
			failures = append(failures, ItemFailure{Index: i, Filename: item.Filename, Reason: err.Error()})
			continue
		}
		stored = append(stored, descriptor)
	}

	return stored, failures
}

// Discard deletes previously stored evidence blobs. Callers use it when
// the appeal the items were collected for fails its preconditions, so
// rejected appeals do not leave orphaned blobs behind. Delete failures are
// logged rather than returned; they must not mask the original rejection.
func (c *Collector) Discard(ctx context.Context, items []cases.EvidenceDescriptor) {
	for _, item := range items {
		if err := c.store.Delete(ctx, item.BlobPath); err != nil {
			c.logf("WARN discard evidence blob %s: %v", item.BlobPath, err)
		}
	}
}

func (c *Collector) collectOne(ctx context.Context, keyPrefix string, item Item) (cases.EvidenceDescriptor, error) {
	if len(item.Data) == 0 {
		return cases.EvidenceDescriptor{}, errors.New("empty payload")
	}
	if len(item.Data) > maxItemSize {
		return cases.EvidenceDescriptor{}, fmt.Errorf("payload exceeds %d bytes", maxItemSize)
	}

	ctx, cancel := context.WithTimeout(ctx, itemTimeout)
	defer cancel()

	verdict, err := c.oracle.Scan(ctx, item.Data)
	if err != nil {
		return cases.EvidenceDescriptor{}, fmt.Errorf("virus scan failed: %w", err)
	}
	if !verdict.Clean {
		return cases.EvidenceDescriptor{}, fmt.Errorf("virus scan flagged %q", verdict.Threat)
	}

	sum := sha256.Sum256(item.Data)
	key := fmt.Sprintf("%s/%s", keyPrefix, uuid.NewString())
	path, err := c.store.Put(ctx, key, item.Data, item.ContentType)
	if err != nil {
		return cases.EvidenceDescriptor{}, fmt.Errorf("store blob: %w", err)
	}

	return cases.EvidenceDescriptor{
		BlobPath:    path,
		ContentType: item.ContentType,
		SHA256:      hex.EncodeToString(sum[:]),
		ScanClean:   true,
	}, nil
}

func (c *Collector) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
