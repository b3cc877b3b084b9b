package cache

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/agitter/manubot/internal/domain"
)

// FormatTag identifies the envelope layout. Entries written under another
// tag are treated as misses.
const FormatTag = "manubot-cache/1"

// Key identifies a cacheable provider response.
type Key struct {
	Provider domain.Provider
	// Value is the normalized identifier value.
	Value string
	// AdapterVersion is the version of the adapter that produced the payload.
	AdapterVersion string
}

// Fingerprint returns the hex BLAKE3 digest of the key fields.
func (k Key) Fingerprint() string {
	h := blake3.New()
	h.Write([]byte(k.Provider))
	h.Write([]byte{0})
	h.Write([]byte(k.Value))
	h.Write([]byte{0})
	h.Write([]byte(k.AdapterVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// String renders the key for logs.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s@%s", k.Provider, k.Value, k.AdapterVersion)
}

// Entry is the envelope persisted for every cached payload.
type Entry struct {
	Format         string    `json:"format"`
	Fingerprint    string    `json:"fingerprint"`
	AdapterVersion string    `json:"adapter_version"`
	StoredAt       time.Time `json:"stored_at"`
	Payload        []byte    `json:"payload"`
}

// Encode serializes the entry as xz-compressed JSON.
func (e Entry) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create xz writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("compress cache entry: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress cache entry: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEntry reverses Encode. Any failure is a *domain.CacheCorruptionError.
func DecodeEntry(fingerprint string, data []byte) (Entry, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return Entry{}, &domain.CacheCorruptionError{Fingerprint: fingerprint, Cause: err}
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return Entry{}, &domain.CacheCorruptionError{Fingerprint: fingerprint, Cause: err}
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, &domain.CacheCorruptionError{Fingerprint: fingerprint, Cause: err}
	}
	return e, nil
}
