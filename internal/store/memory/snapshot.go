package memory

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rkm/stac-catalog/internal/stac"
	"github.com/rkm/stac-catalog/internal/store"
)

// Snapshot file layout: 4-byte magic, 1-byte format version, 8-byte
// little-endian uncompressed length, then one lz4-compressed block holding
// the msgpack-encoded snapshotFile.
var snapshotMagic = [4]byte{'S', 'C', 'A', 'T'}

const snapshotVersion = 1

type snapshotFile struct {
	Collections [][]byte       `msgpack:"collections"`
	Items       []snapshotItem `msgpack:"items"`
}

type snapshotItem struct {
	Data     []byte `msgpack:"data"`
	Revision string `msgpack:"rev"`
}

func (s *Store) snapshotLoop(interval time.Duration) {
	defer close(s.snapshotDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.writeSnapshot(); err != nil {
				s.logger.Error("snapshot write failed", "path", s.snapshotPath, "error", err)
			}
		case <-s.stopSnapshot:
			return
		}
	}
}

// writeSnapshot serializes the full catalog and replaces the snapshot file
// atomically via a temp file in the same directory plus rename.
func (s *Store) writeSnapshot() error {
	snap, err := s.buildSnapshot()
	if err != nil {
		return err
	}

	raw, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(raw, compressed)
	if err != nil {
		return fmt.Errorf("compressing snapshot: %w", err)
	}

	buf := make([]byte, 0, 13+n)
	buf = append(buf, snapshotMagic[:]...)
	buf = append(buf, snapshotVersion)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(raw)))
	buf = append(buf, compressed[:n]...)

	dir := filepath.Dir(s.snapshotPath)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.snapshotPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	s.logger.Debug("snapshot written", "path", s.snapshotPath,
		"rawBytes", len(raw), "compressedBytes", n)
	return nil
}

func (s *Store) buildSnapshot() (*snapshotFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &snapshotFile{}
	for _, state := range s.collections {
		data, err := json.Marshal(state.meta)
		if err != nil {
			return nil, fmt.Errorf("encoding collection %q: %w", state.meta.Id, err)
		}
		snap.Collections = append(snap.Collections, data)
		for _, rec := range state.items {
			data, err := json.Marshal(rec.Item)
			if err != nil {
				return nil, fmt.Errorf("encoding item %q: %w", rec.Item.Id, err)
			}
			snap.Items = append(snap.Items, snapshotItem{Data: data, Revision: rec.Revision})
		}
	}
	return snap, nil
}

// loadSnapshot restores the catalog from a snapshot file. A missing file is
// an empty catalog, not an error.
func (s *Store) loadSnapshot(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if len(buf) < 13 || [4]byte(buf[:4]) != snapshotMagic {
		return fmt.Errorf("snapshot %s: not a snapshot file", path)
	}
	if buf[4] != snapshotVersion {
		return fmt.Errorf("snapshot %s: unsupported format version %d", path, buf[4])
	}
	rawLen := binary.LittleEndian.Uint64(buf[5:13])

	raw := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(buf[13:], raw)
	if err != nil {
		return fmt.Errorf("decompressing snapshot %s: %w", path, err)
	}

	var snap snapshotFile
	if err := msgpack.Unmarshal(raw[:n], &snap); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", path, err)
	}

	for _, data := range snap.Collections {
		var collection stac.Collection
		if err := json.Unmarshal(data, &collection); err != nil {
			return fmt.Errorf("decoding snapshot collection: %w", err)
		}
		s.collections[collection.Id] = newCollectionState(&collection)
	}
	for _, si := range snap.Items {
		var item stac.Item
		if err := json.Unmarshal(si.Data, &item); err != nil {
			return fmt.Errorf("decoding snapshot item: %w", err)
		}
		rec, err := store.NewRecord(&item)
		if err != nil {
			return fmt.Errorf("restoring snapshot item %q: %w", item.Id, err)
		}
		rec.Revision = si.Revision
		state, ok := s.collections[item.Collection]
		if !ok {
			return fmt.Errorf("snapshot item %q references unknown collection %q",
				item.Id, item.Collection)
		}
		state.insert(rec)
	}

	s.logger.Info("snapshot loaded", "path", path,
		"collections", len(snap.Collections), "items", len(snap.Items))
	return nil
}
