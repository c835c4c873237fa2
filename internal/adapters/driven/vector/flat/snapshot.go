package flat

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// Snapshot layout, little-endian:
//
//	magic    [4]byte "SIXF"
//	version  uint32
//	dim      uint32
//	count    uint64  number of slots
//	vectors  [count*dim]float32
//	metaLen  uint32
//	meta     JSON snapshotMeta
//	crc      uint32  CRC-32 (IEEE) of everything above
const (
	snapshotMagic   = "SIXF"
	snapshotVersion = 1
	headerSize      = 4 + 4 + 4 + 8
)

type snapshotMeta struct {
	Slots          map[string]string         `json:"slots"`
	Metadata       map[string]map[string]any `json:"metadata"`
	Stale          []int64                   `json:"stale"`
	RebuildPending bool                      `json:"rebuild_pending"`
}

// Persist writes the index to its snapshot file through a temporary file
// and a rename, so readers never observe a partial snapshot.
func (x *Index) Persist(ctx context.Context) error {
	if x.path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(x.path), 0700); err != nil {
		return fmt.Errorf("flat: persist: %w", err)
	}

	tmp := x.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("flat: persist: %w", err)
	}

	x.mu.RLock()
	err = x.encode(f)
	total := len(x.data.slots)
	x.mu.RUnlock()

	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, x.path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("flat: persist: %w", err)
	}

	logger.Debug("index snapshot written", "path", x.path, "total_vectors", total)
	return nil
}

// encode writes the current state. Caller must hold mu for reading.
func (x *Index) encode(w io.Writer) error {
	s := x.data
	crc := crc32.NewIEEE()
	bw := bufio.NewWriter(io.MultiWriter(w, crc))

	header := make([]byte, headerSize)
	copy(header[0:4], snapshotMagic)
	binary.LittleEndian.PutUint32(header[4:8], snapshotVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(x.dim))
	binary.LittleEndian.PutUint64(header[12:20], uint64(len(s.slots)))
	if _, err := bw.Write(header); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, v := range s.vectors {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}

	meta := snapshotMeta{
		Slots:          make(map[string]string, len(s.chunkSlot)),
		Metadata:       s.metadata,
		RebuildPending: s.rebuildPending,
	}
	for slot, id := range s.slots {
		if id != "" && !s.stale[slot] {
			meta.Slots[strconv.Itoa(slot)] = id
		}
		if s.stale[slot] {
			meta.Stale = append(meta.Stale, int64(slot))
		}
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf, uint32(len(encoded)))
	if _, err := bw.Write(buf); err != nil {
		return err
	}
	if _, err := bw.Write(encoded); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(buf, crc.Sum32())
	_, err = w.Write(buf)
	return err
}

// Load replaces the in-memory state with the snapshot file. A missing,
// corrupt or incompatible snapshot leaves an empty index and is not an
// error: the reconciler rebuilds from the chunk store.
func (x *Index) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	next, err := x.readSnapshot()
	switch {
	case err == nil:
		logger.Info("index snapshot loaded", "path", x.path, "total_vectors", len(next.slots))
	case errors.Is(err, os.ErrNotExist):
		logger.Info("no index snapshot, starting empty", "path", x.path)
		next = newState(x.dim, 0)
	default:
		logger.Warn("index snapshot unusable, starting empty", "path", x.path, "error", err)
		next = newState(x.dim, 0)
	}

	x.mu.Lock()
	x.data = next
	x.mu.Unlock()
	return nil
}

func (x *Index) readSnapshot() (*state, error) {
	if x.path == "" {
		return nil, os.ErrNotExist
	}
	raw, err := os.ReadFile(x.path)
	if err != nil {
		return nil, err
	}
	return decode(raw, x.dim)
}

func decode(raw []byte, dim int) (*state, error) {
	if len(raw) < headerSize+8 {
		return nil, fmt.Errorf("%w: truncated", domain.ErrIndexCorrupt)
	}
	body, sum := raw[:len(raw)-4], binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", domain.ErrIndexCorrupt)
	}
	if string(body[0:4]) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic", domain.ErrIndexCorrupt)
	}
	if v := binary.LittleEndian.Uint32(body[4:8]); v != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", domain.ErrIndexCorrupt, v)
	}
	if d := int(binary.LittleEndian.Uint32(body[8:12])); d != dim {
		return nil, fmt.Errorf("%w: snapshot has %d dimensions, index has %d", domain.ErrDimensionMismatch, d, dim)
	}
	count := binary.LittleEndian.Uint64(body[12:20])

	off := uint64(headerSize)
	vecBytes := count * uint64(dim) * 4
	if count > uint64(len(body)) || off+vecBytes+4 > uint64(len(body)) {
		return nil, fmt.Errorf("%w: truncated vectors", domain.ErrIndexCorrupt)
	}

	s := newState(dim, int(count))
	for i := uint64(0); i < count*uint64(dim); i++ {
		s.vectors = append(s.vectors, math.Float32frombits(binary.LittleEndian.Uint32(body[off:off+4])))
		off += 4
	}

	metaLen := uint64(binary.LittleEndian.Uint32(body[off : off+4]))
	off += 4
	if off+metaLen != uint64(len(body)) {
		return nil, fmt.Errorf("%w: metadata length mismatch", domain.ErrIndexCorrupt)
	}
	var meta snapshotMeta
	if err := json.Unmarshal(body[off:], &meta); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexCorrupt, err)
	}

	s.slots = make([]string, count)
	s.stale = make([]bool, count)
	for _, slot := range meta.Stale {
		if slot < 0 || uint64(slot) >= count {
			return nil, fmt.Errorf("%w: stale slot %d out of range", domain.ErrIndexCorrupt, slot)
		}
		s.stale[slot] = true
	}
	for key, id := range meta.Slots {
		slot, err := strconv.ParseUint(key, 10, 64)
		if err != nil || slot >= count {
			return nil, fmt.Errorf("%w: bad slot %q", domain.ErrIndexCorrupt, key)
		}
		if _, dup := s.chunkSlot[id]; dup {
			return nil, fmt.Errorf("%w: chunk %q mapped twice", domain.ErrIndexCorrupt, id)
		}
		s.slots[slot] = id
		s.chunkSlot[id] = int64(slot)
		md := meta.Metadata[id]
		if md == nil {
			md = map[string]any{}
		}
		s.metadata[id] = md
	}
	s.rebuildPending = meta.RebuildPending
	return s, nil
}
