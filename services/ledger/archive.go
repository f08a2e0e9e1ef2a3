package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"modguard/pkg/blob"
	"modguard/pkg/clock"
)

// ArchiveManifest is the signed metadata written alongside each archived
// chain segment.
type ArchiveManifest struct {
	Version          string    `yaml:"version"`
	CreatedAt        time.Time `yaml:"created_at"`
	FirstSequence    int64     `yaml:"first_sequence"`
	LastSequence     int64     `yaml:"last_sequence"`
	RecordCount      int       `yaml:"record_count"`
	FirstRecordHash  string    `yaml:"first_record_hash"`
	LastRecordHash   string    `yaml:"last_record_hash"`
	BundleSHA256     string    `yaml:"bundle_sha256"`
	SigningPublicKey string    `yaml:"signing_public_key,omitempty"`
	Signature        string    `yaml:"signature,omitempty"`
}

// SigningBytes marshals the manifest without its signature for
// signing and verification.
func (m ArchiveManifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}

// Archiver moves aged chain segments to write-once blob storage and removes
// them from the live table.
type Archiver struct {
	orm    *gorm.DB
	store  blob.Store
	signer *Signer
	clk    clock.Clock
	logger *log.Logger
}

// NewArchiver constructs an Archiver. The signer is optional; without it
// manifests are written unsigned.
func NewArchiver(orm *gorm.DB, store blob.Store, signer *Signer, clk clock.Clock, logger *log.Logger) (*Archiver, error) {
	if orm == nil {
		return nil, errors.New("archiver: orm is required")
	}
	if store == nil {
		return nil, errors.New("archiver: blob store is required")
	}
	if clk == nil {
		return nil, errors.New("archiver: clock is required")
	}

	return &Archiver{orm: orm, store: store, signer: signer, clk: clk, logger: logger}, nil
}

// CleanupOlderThan archives every record created before cutoff and deletes
// the archived rows. The upload strictly precedes the delete: a crash
// between the two re-archives the same rows on the next run instead of
// losing them. Holds the maintenance lock for its duration, so it cannot
// overlap a chain verification pass.
func (a *Archiver) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	archived := 0

	err := a.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked bool
		if err := tx.Raw("SELECT pg_try_advisory_xact_lock(?)", maintenanceLockKey).Scan(&locked).Error; err != nil {
			return fmt.Errorf("archiver: acquire maintenance lock: %w", err)
		}
		if !locked {
			return ErrMaintenanceBusy
		}

		var records []AuditRecord
		if err := tx.Where("created_at < ?", cutoff).Order("sequence_id ASC").Find(&records).Error; err != nil {
			return fmt.Errorf("archiver: load records: %w", err)
		}
		if len(records) == 0 {
			return nil
		}

		now := a.clk.Now().UTC()
		bundle, manifest, err := buildArchive(records, a.signer, now)
		if err != nil {
			return err
		}

		baseKey := fmt.Sprintf("archives/audit/%s-%d-%d",
			now.Format("20060102T150405Z"), manifest.FirstSequence, manifest.LastSequence)

		if _, err := a.store.Put(ctx, baseKey+".jsonl.zst", bundle, "application/zstd"); err != nil {
			return fmt.Errorf("archiver: upload bundle: %w", err)
		}

		manifestBytes, err := yaml.Marshal(manifest)
		if err != nil {
			return fmt.Errorf("archiver: marshal manifest: %w", err)
		}
		if _, err := a.store.Put(ctx, baseKey+".manifest.yaml", manifestBytes, "application/yaml"); err != nil {
			return fmt.Errorf("archiver: upload manifest: %w", err)
		}

		result := tx.Where("sequence_id <= ? AND created_at < ?", manifest.LastSequence, cutoff).Delete(&AuditRecord{})
		if result.Error != nil {
			return fmt.Errorf("archiver: delete archived records: %w", result.Error)
		}

		archived = len(records)
		if a.logger != nil {
			a.logger.Printf("INFO archived %d audit record(s) to %s", archived, baseKey)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	archivedRecordsTotal.Add(float64(archived))
	return archived, nil
}

// buildArchive serializes records as zstd-compressed JSONL and produces the
// signed manifest describing the segment.
func buildArchive(records []AuditRecord, signer *Signer, now time.Time) ([]byte, ArchiveManifest, error) {
	if len(records) == 0 {
		return nil, ArchiveManifest{}, errors.New("archiver: no records to archive")
	}

	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, ArchiveManifest{}, fmt.Errorf("zstd writer: %w", err)
	}

	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			_ = encoder.Close()
			return nil, ArchiveManifest{}, fmt.Errorf("marshal record %d: %w", rec.SequenceID, err)
		}
		if _, err := encoder.Write(append(line, '\n')); err != nil {
			_ = encoder.Close()
			return nil, ArchiveManifest{}, fmt.Errorf("write record %d: %w", rec.SequenceID, err)
		}
	}
	if err := encoder.Close(); err != nil {
		return nil, ArchiveManifest{}, fmt.Errorf("close zstd writer: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	manifest := ArchiveManifest{
		Version:         "1",
		CreatedAt:       now,
		FirstSequence:   records[0].SequenceID,
		LastSequence:    records[len(records)-1].SequenceID,
		RecordCount:     len(records),
		FirstRecordHash: records[0].RecordHash,
		LastRecordHash:  records[len(records)-1].RecordHash,
		BundleSHA256:    hex.EncodeToString(sum[:]),
	}

	if signer != nil {
		manifest.SigningPublicKey = signer.PublicKeyBase64()
		payload, err := manifest.SigningBytes()
		if err != nil {
			return nil, ArchiveManifest{}, err
		}
		signature, err := signer.Sign(payload)
		if err != nil {
			return nil, ArchiveManifest{}, fmt.Errorf("sign manifest: %w", err)
		}
		manifest.Signature = signature
	}

	return buf.Bytes(), manifest, nil
}
