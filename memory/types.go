package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/samber/lo"
)

type (
	// Record is a single captured memory. Once committed it is immutable;
	// editing a memory means appending a new record.
	Record struct {
		ID        uint           `json:"id"`
		Content   string         `json:"content"`
		CreatedAt time.Time      `json:"createdAt"`
		Tags      []string       `json:"tags,omitempty"`
		Source    string         `json:"source"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}

	// ScoredRecord holds a record with its relevance score
	ScoredRecord struct {
		Record *Record `json:"record"`
		Score  float64 `json:"score"`
	}

	// Filter selects records in Scan. All supplied predicates are ANDed.
	Filter struct {
		// Tags matches records whose tag set contains every listed tag
		Tags []string
		// Contains is a case-insensitive substring match on content
		Contains string
		// Since/Until bound CreatedAt to the half-open interval [Since, Until)
		Since *time.Time
		Until *time.Time
		// Source matches provenance exactly
		Source string
	}

	// VectorEntry is a derived embedding for one record. It is a cache keyed
	// by record id, never authoritative, and can always be recomputed from
	// the record table.
	VectorEntry struct {
		RecordID    uint      `json:"recordId"`
		Model       string    `json:"model"`
		ContentHash string    `json:"contentHash"`
		Vector      []float32 `json:"-"`
	}

	Stats struct {
		Total    int64            `json:"total"`
		Indexed  int64            `json:"indexed"`
		BySource map[string]int64 `json:"bySource"`
		ByTag    map[string]int64 `json:"byTag"`
	}
)

// SourceUnknown is the provenance recorded when a producer does not name one.
const SourceUnknown = "unknown"

// Matches reports whether r satisfies every predicate in f.
func (f *Filter) Matches(r *Record) bool {
	if len(f.Tags) > 0 && !lo.Every(r.Tags, f.Tags) {
		return false
	}
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !r.CreatedAt.Before(*f.Until) {
		return false
	}
	if f.Contains != "" && !strings.Contains(strings.ToLower(r.Content), strings.ToLower(f.Contains)) {
		return false
	}
	return true
}

func (r *Record) clone() *Record {
	cloned := *r
	cloned.Tags = lo.Map(r.Tags, func(t string, _ int) string { return t })
	if r.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return &cloned
}

// contentHash identifies the exact content a vector was computed from, so a
// stale or corrupted index entry can be detected.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}
