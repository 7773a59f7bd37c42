package manifest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/lakecat/blobstore"
	"github.com/hupe1980/lakecat/codec"
	"github.com/hupe1980/lakecat/core"
	"github.com/klauspost/compress/zstd"
)

const (
	// CurrentVersion is the manifest state format version.
	CurrentVersion = 1
	// CurrentPointerName is the per-dataset pointer blob naming the live
	// manifest file.
	CurrentPointerName = "CURRENT"
)

var stateMagic = [4]byte{'L', 'K', 'M', '0'}

// Store persists manifest states to a blob store.
//
// Each Save writes a new immutable MANIFEST-%08d file and then repoints
// CURRENT at it. When the blob store implements blobstore.CommitStore the
// repoint is a compare-and-swap, so concurrent writers fail cleanly with
// blobstore.ErrConcurrentCommit instead of losing commits; plain stores fall
// back to last-writer-wins, which is fine for single-writer deployments.
type Store struct {
	blobs blobstore.BlobStore
	cd    codec.Codec

	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewStore creates a manifest store over the given blob store.
func NewStore(blobs blobstore.BlobStore, cd codec.Codec) (*Store, error) {
	if cd == nil {
		cd = codec.Default
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Store{blobs: blobs, cd: cd, enc: enc, dec: dec}, nil
}

// Prefix returns the blob-name prefix holding a dataset's state.
func Prefix(dataset core.EntryID) string {
	return "datasets/" + dataset.String() + "/"
}

func (s *Store) currentName(dataset core.EntryID) string {
	return Prefix(dataset) + CurrentPointerName
}

// Load reads the current manifest state of a dataset. A dataset that has
// never been saved returns a fresh empty state.
func (s *Store) Load(ctx context.Context, dataset core.EntryID) (*State, error) {
	pointer, _, err := s.readPointer(ctx, dataset)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return NewState(dataset), nil
		}
		return nil, err
	}

	blob, err := s.blobs.Open(ctx, Prefix(dataset)+string(pointer))
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", pointer, err)
	}
	defer blob.Close()

	data := make([]byte, blob.Size())
	if _, err := blob.ReadAt(ctx, data, 0); err != nil && len(data) > 0 {
		return nil, fmt.Errorf("read manifest %s: %w", pointer, err)
	}
	return s.decodeState(data)
}

// Save writes a new manifest file and atomically repoints CURRENT.
// The caller retries on blobstore.ErrConcurrentCommit after reloading.
func (s *Store) Save(ctx context.Context, st *State) error {
	st.Version = CurrentVersion
	st.Commit++

	filename := fmt.Sprintf("MANIFEST-%08d", st.Commit)
	data, err := s.encodeState(st)
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, Prefix(st.Dataset)+filename, data); err != nil {
		return fmt.Errorf("write manifest %s: %w", filename, err)
	}
	return s.commitPointer(ctx, st.Dataset, st.Commit-1, []byte(filename))
}

// Drop removes every blob under the dataset's prefix. Used by catalog-level
// entry deletion, which is irreversible.
func (s *Store) Drop(ctx context.Context, dataset core.EntryID) error {
	names, err := s.blobs.List(ctx, Prefix(dataset))
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.blobs.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) readPointer(ctx context.Context, dataset core.EntryID) ([]byte, uint64, error) {
	if cs, ok := s.blobs.(blobstore.CommitStore); ok {
		return cs.ReadPointer(ctx, s.currentName(dataset))
	}
	blob, err := s.blobs.Open(ctx, s.currentName(dataset))
	if err != nil {
		return nil, 0, err
	}
	defer blob.Close()
	data := make([]byte, blob.Size())
	if _, err := blob.ReadAt(ctx, data, 0); err != nil && len(data) > 0 {
		return nil, 0, err
	}
	return data, 0, nil
}

func (s *Store) commitPointer(ctx context.Context, dataset core.EntryID, expect uint64, contents []byte) error {
	if cs, ok := s.blobs.(blobstore.CommitStore); ok {
		_, err := cs.CommitPointer(ctx, s.currentName(dataset), expect, contents)
		return err
	}
	return s.blobs.Put(ctx, s.currentName(dataset), contents)
}

func (s *Store) encodeState(st *State) ([]byte, error) {
	body, err := s.cd.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode manifest state: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(stateMagic[:])
	var fixed [4]byte
	binary.LittleEndian.PutUint16(fixed[0:2], CurrentVersion)
	binary.LittleEndian.PutUint16(fixed[2:4], uint16(len(s.cd.Name())))
	buf.Write(fixed[:])
	buf.WriteString(s.cd.Name())

	s.mu.Lock()
	compressed := s.enc.EncodeAll(body, nil)
	s.mu.Unlock()
	buf.Write(compressed)
	return buf.Bytes(), nil
}

func (s *Store) decodeState(data []byte) (*State, error) {
	if len(data) < 8 || !bytes.Equal(data[:4], stateMagic[:]) {
		return nil, fmt.Errorf("invalid manifest header")
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", version, CurrentVersion)
	}
	nameLen := int(binary.LittleEndian.Uint16(data[6:8]))
	if len(data) < 8+nameLen {
		return nil, fmt.Errorf("truncated manifest header")
	}
	cd, ok := codec.ByName(string(data[8 : 8+nameLen]))
	if !ok {
		return nil, fmt.Errorf("unknown manifest codec %q", data[8:8+nameLen])
	}

	s.mu.Lock()
	body, err := s.dec.DecodeAll(data[8+nameLen:], nil)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("decompress manifest: %w", err)
	}

	var st State
	if err := cd.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("decode manifest state: %w", err)
	}
	if st.Partitions == nil {
		st.Partitions = make(map[core.PartitionID]*PartitionManifest)
	}
	if st.Indexes == nil {
		st.Indexes = make(map[string]*IndexRecord)
	}
	if st.Chunks == nil {
		st.Chunks = &ChunkManifest{Dataset: st.Dataset}
	}
	return &st, nil
}
