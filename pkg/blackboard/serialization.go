package blackboard

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Composite fields
// (segments, status) are JSON-encoded into single hash fields so that each
// write replaces the whole document atomically while scalar fields stay
// individually readable.

// RecordToHash converts a CaseRecord to a Redis hash format.
// Composite fields (segments, status) are JSON-encoded.
func RecordToHash(r *CaseRecord) (map[string]interface{}, error) {
	segmentsJSON, err := json.Marshal(r.Segments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal segments: %w", err)
	}

	statusJSON, err := json.Marshal(r.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}

	hash := map[string]interface{}{
		"session_id":     r.SessionID,
		"version":        r.Version,
		"parent_version": r.ParentVersion,
		"segments":       string(segmentsJSON),
		"status":         string(statusJSON),
		"token":          r.Token,
		"created_at_ms":  r.CreatedAtMs,
	}

	return hash, nil
}

// HashToRecord converts a Redis hash back to a CaseRecord.
// JSON fields are decoded back to Go types.
func HashToRecord(hash map[string]string) (*CaseRecord, error) {
	version, err := strconv.Atoi(hash["version"])
	if err != nil {
		return nil, fmt.Errorf("invalid version field: %w", err)
	}

	parentVersion, err := strconv.Atoi(hash["parent_version"])
	if err != nil {
		return nil, fmt.Errorf("invalid parent_version field: %w", err)
	}

	var segments Segments
	if segmentsJSON := hash["segments"]; segmentsJSON != "" {
		if err := json.Unmarshal([]byte(segmentsJSON), &segments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal segments: %w", err)
		}
	}

	// Missing status decodes to all-pending rather than zero values, so a
	// record written by an older schema still routes safely.
	status := AllPending()
	if statusJSON := hash["status"]; statusJSON != "" {
		if err := json.Unmarshal([]byte(statusJSON), &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	record := &CaseRecord{
		SessionID:     hash["session_id"],
		Version:       version,
		ParentVersion: parentVersion,
		Segments:      segments,
		Status:        status,
		Token:         hash["token"],
		CreatedAtMs:   createdAtMs,
	}

	return record, nil
}
