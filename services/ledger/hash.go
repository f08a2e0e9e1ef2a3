package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// canonicalPayload produces a deterministic serialization of every hashed
// field on a record. encoding/json sorts map keys, so two processes always
// agree on the byte sequence for the same record.
func canonicalPayload(r AuditRecord) ([]byte, error) {
	actorID := ""
	if r.ActorID != nil {
		actorID = r.ActorID.String()
	}

	payload := map[string]any{
		"event_type":  r.EventType,
		"actor_type":  r.ActorType,
		"actor_id":    actorID,
		"target_type": r.TargetType,
		"target_id":   r.TargetID,
		"action":      r.Action,
		"old_values":  map[string]any(r.OldValues),
		"new_values":  map[string]any(r.NewValues),
		"metadata":    map[string]any(r.Metadata),
		"ip_address":  r.IPAddress,
		"user_agent":  r.UserAgent,
		// timestamptz keeps microsecond precision, so the hash must only
		// cover what survives a storage round-trip.
		"timestamp": r.CreatedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("canonical payload: %w", err)
	}
	return data, nil
}

// computeHash digests the canonical payload together with the previous
// record's hash under the ledger secret. The secret keeps an attacker with
// raw table access from recomputing a consistent chain after tampering.
func computeHash(r AuditRecord, secret []byte) (string, error) {
	payload, err := canonicalPayload(r)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	mac.Write([]byte(r.PreviousRecordHash))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// verifyHash recomputes a record's hash from its stored fields and compares
// it in constant time against the stored value.
func verifyHash(r AuditRecord, secret []byte) bool {
	want, err := computeHash(r, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(r.RecordHash))
}
