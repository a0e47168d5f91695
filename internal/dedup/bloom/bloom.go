// Package bloom implements the fixed-capacity probabilistic URL set behind
// the deduplicator's fast path. A negative answer is authoritative; a
// positive answer is resolved by a more precise tier. The filter is additive
// only: if capacity is exceeded and accuracy decays, rebuild a fresh filter
// from the persistent store rather than attempting deletion.
package bloom

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"

	apperrors "github.com/websift/dedup-engine/pkg/errors"
)

// Filter is a Bloom filter over URL strings. Bit-array size and hash count
// are fixed at construction; only the bit array mutates, monotonically.
// Not safe for concurrent use; the deduplicator serialises access.
type Filter struct {
	capacity          int
	falsePositiveRate float64
	bitArraySize      uint64
	hashFunctionCount int
	bits              []uint64
}

// New sizes a filter for the expected item count and target false-positive
// rate: m = ceil(-n*ln(p)/(ln 2)^2) bits and k = round(m*ln(2)/n) hash
// functions.
func New(capacity int, falsePositiveRate float64) (*Filter, error) {
	if capacity <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "bloom capacity must be positive, got %d", capacity)
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration,
			"bloom false-positive rate must be in (0, 1), got %g", falsePositiveRate)
	}
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(capacity) * math.Log(falsePositiveRate) / (ln2 * ln2)))
	if m == 0 {
		m = 1
	}
	k := int(math.Round(float64(m) * ln2 / float64(capacity)))
	if k < 1 {
		k = 1
	}
	return &Filter{
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
		bitArraySize:      m,
		hashFunctionCount: k,
		bits:              make([]uint64, (m+63)/64),
	}, nil
}

// Add sets the k bit positions for item.
func (f *Filter) Add(item string) {
	h1, h2 := f.hashPair(item)
	for i := 0; i < f.hashFunctionCount; i++ {
		idx := (h1 + uint64(i)*h2) % f.bitArraySize
		f.bits[idx/64] |= 1 << (idx % 64)
	}
}

// Contains reports whether item might be in the set. False means definitely
// absent; true means present with probability bounded by the configured
// false-positive rate.
func (f *Filter) Contains(item string) bool {
	h1, h2 := f.hashPair(item)
	for i := 0; i < f.hashFunctionCount; i++ {
		idx := (h1 + uint64(i)*h2) % f.bitArraySize
		if f.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// hashPair derives two 64-bit hashes of item for double hashing. The stride
// is forced odd so the k probe indices stay distinct modulo the array size.
func (f *Filter) hashPair(item string) (uint64, uint64) {
	h := fnv.New64a()
	h.Write([]byte(item))
	h1 := h.Sum64()
	h.Write([]byte{0xff})
	h2 := h.Sum64() | 1
	return h1, h2
}

// Capacity returns the design capacity.
func (f *Filter) Capacity() int { return f.capacity }

// FalsePositiveRate returns the design false-positive rate.
func (f *Filter) FalsePositiveRate() float64 { return f.falsePositiveRate }

// BitArraySize returns the number of bits in the filter.
func (f *Filter) BitArraySize() uint64 { return f.bitArraySize }

// HashFunctionCount returns the number of probe positions per item.
func (f *Filter) HashFunctionCount() int { return f.hashFunctionCount }

// snapshot is the serialised form of a Filter.
type snapshot struct {
	Capacity          int     `json:"capacity"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	BitArraySize      uint64  `json:"bit_array_size"`
	HashFunctionCount int     `json:"hash_function_count"`
	Bits              string  `json:"bits"`
}

// Serialize encodes the filter state. The encoding is stable: serialising a
// deserialised snapshot reproduces the original bytes.
func (f *Filter) Serialize() ([]byte, error) {
	raw := make([]byte, len(f.bits)*8)
	for i, word := range f.bits {
		for b := 0; b < 8; b++ {
			raw[i*8+b] = byte(word >> (8 * b))
		}
	}
	return json.Marshal(snapshot{
		Capacity:          f.capacity,
		FalsePositiveRate: f.falsePositiveRate,
		BitArraySize:      f.bitArraySize,
		HashFunctionCount: f.hashFunctionCount,
		Bits:              base64.StdEncoding.EncodeToString(raw),
	})
}

// Deserialize reconstructs a Filter from Serialize output. Any structural
// mismatch is reported as ErrSnapshotCorrupt so callers can rebuild from the
// store instead.
func Deserialize(data []byte) (*Filter, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, apperrors.Newf(apperrors.ErrSnapshotCorrupt, "decoding bloom snapshot: %v", err)
	}
	if snap.Capacity <= 0 || snap.BitArraySize == 0 || snap.HashFunctionCount < 1 {
		return nil, apperrors.Newf(apperrors.ErrSnapshotCorrupt,
			"implausible bloom parameters: capacity=%d bits=%d hashes=%d",
			snap.Capacity, snap.BitArraySize, snap.HashFunctionCount)
	}
	raw, err := base64.StdEncoding.DecodeString(snap.Bits)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrSnapshotCorrupt, "decoding bloom bit array: %v", err)
	}
	wordCount := int((snap.BitArraySize + 63) / 64)
	if len(raw) != wordCount*8 {
		return nil, apperrors.Newf(apperrors.ErrSnapshotCorrupt,
			"bloom bit array length %d does not match size %d", len(raw), snap.BitArraySize)
	}
	bits := make([]uint64, wordCount)
	for i := range bits {
		var word uint64
		for b := 0; b < 8; b++ {
			word |= uint64(raw[i*8+b]) << (8 * b)
		}
		bits[i] = word
	}
	return &Filter{
		capacity:          snap.Capacity,
		falsePositiveRate: snap.FalsePositiveRate,
		bitArraySize:      snap.BitArraySize,
		hashFunctionCount: snap.HashFunctionCount,
		bits:              bits,
	}, nil
}

// SaveFile writes the filter snapshot atomically (tmp file then rename).
func (f *Filter) SaveFile(path string) error {
	data, err := f.Serialize()
	if err != nil {
		return fmt.Errorf("serialising bloom filter: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// LoadFile reads a snapshot written by SaveFile.
func LoadFile(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	return Deserialize(data)
}
