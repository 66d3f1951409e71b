package iocache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
	"github.com/klauspost/compress/zstd"
)

// EntryVersion is the cache_version written alongside encoded entries.
// Rows with any other version are ignored on read.
const EntryVersion = 1

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	codecErr    error
)

// initCodec creates the shared zstd encoder and decoder.
func initCodec() error {
	encoderOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return codecErr
}

// EncodeEntry serializes an entry as zstd-compressed JSON.
func EncodeEntry(entry *schema.CacheEntry) ([]byte, error) {
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("failed to initialize zstd: %w", err)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry %s: %w", entry.Identity, err)
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// DecodeEntry reverses EncodeEntry.
func DecodeEntry(data []byte) (*schema.CacheEntry, error) {
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("failed to initialize zstd: %w", err)
	}
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress entry: %w", err)
	}
	var entry schema.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// SaveEntry writes an entry to store under its identity key.
func SaveEntry(store contract.CacheStore, entry *schema.CacheEntry) error {
	data, err := EncodeEntry(entry)
	if err != nil {
		return err
	}
	return store.Set(entry.Identity.Key(), data, EntryVersion, entry.ProducedAt.Unix())
}

// LoadEntries decodes every current-version entry written at or after since.
// Rows that cannot be decoded are skipped.
func LoadEntries(store contract.CacheStore, since int64) ([]*schema.CacheEntry, error) {
	var entries []*schema.CacheEntry
	err := store.Scan(since, func(key string, value []byte, version int, _ int64) error {
		if version != EntryVersion {
			return nil
		}
		entry, err := DecodeEntry(value)
		if err != nil || entry.Identity.Key() != key {
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
