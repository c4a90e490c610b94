// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bureau-foundation/parley/lib/codec"
)

// Turn is one archived message.
type Turn struct {
	Role    string `cbor:"role"`
	Content string `cbor:"content"`
}

// Record is the span of conversation a compression replaced, together
// with the narrative that replaced it.
type Record struct {
	SessionID string    `cbor:"session_id"`
	CreatedAt time.Time `cbor:"created_at"`

	// PreviousNarrative is the narrative that was in effect before
	// this compression, empty for a session's first compression.
	PreviousNarrative string `cbor:"previous_narrative,omitempty"`

	Turns     []Turn `cbor:"turns"`
	Narrative string `cbor:"narrative"`
}

// Ref locates a stored checkpoint.
type Ref struct {
	Hash        Hash
	Compression Compression
}

// Store keeps checkpoints as files named <hash>.cbor.<compression> in
// one directory. Identical records share a file.
type Store struct {
	directory string
}

// NewStore returns a Store rooted at directory. The directory is
// created on the first Write.
func NewStore(directory string) *Store {
	return &Store{directory: directory}
}

// Directory returns the checkpoint directory.
func (store *Store) Directory() string {
	return store.directory
}

// Path returns the file a checkpoint is stored in.
func (store *Store) Path(ref Ref) string {
	return filepath.Join(store.directory, ref.Hash.String()+".cbor."+string(ref.Compression))
}

// Write encodes, hashes, compresses, and stores record. Writing a
// record that is already stored is a no-op that returns the same Ref.
func (store *Store) Write(record Record) (Ref, error) {
	encoded, err := codec.Marshal(record)
	if err != nil {
		return Ref{}, fmt.Errorf("checkpoint: encoding record: %w", err)
	}
	payload, compression := Compress(encoded)
	ref := Ref{Hash: HashRecord(encoded), Compression: compression}

	path := store.Path(ref)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}
	if err := os.MkdirAll(store.directory, 0o755); err != nil {
		return Ref{}, fmt.Errorf("checkpoint: creating %s: %w", store.directory, err)
	}

	temporary, err := os.CreateTemp(store.directory, ".checkpoint-*.tmp")
	if err != nil {
		return Ref{}, fmt.Errorf("checkpoint: creating temp file: %w", err)
	}
	defer os.Remove(temporary.Name())
	if _, err := temporary.Write(payload); err != nil {
		temporary.Close()
		return Ref{}, fmt.Errorf("checkpoint: writing %s: %w", ref.Hash, err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return Ref{}, fmt.Errorf("checkpoint: syncing %s: %w", ref.Hash, err)
	}
	if err := temporary.Close(); err != nil {
		return Ref{}, fmt.Errorf("checkpoint: closing %s: %w", ref.Hash, err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return Ref{}, fmt.Errorf("checkpoint: storing %s: %w", ref.Hash, err)
	}
	return ref, nil
}

// ErrHashMismatch reports a checkpoint whose content no longer matches
// its name.
var ErrHashMismatch = errors.New("checkpoint: content does not match hash")

// Read loads the checkpoint ref names and verifies its hash.
func (store *Store) Read(ref Ref) (Record, error) {
	payload, err := os.ReadFile(store.Path(ref))
	if err != nil {
		return Record{}, fmt.Errorf("checkpoint: reading %s: %w", ref.Hash, err)
	}
	encoded, err := Decompress(payload, ref.Compression)
	if err != nil {
		return Record{}, err
	}
	if HashRecord(encoded) != ref.Hash {
		return Record{}, fmt.Errorf("%w: %s", ErrHashMismatch, ref.Hash)
	}
	var record Record
	if err := codec.Unmarshal(encoded, &record); err != nil {
		return Record{}, fmt.Errorf("checkpoint: decoding %s: %w", ref.Hash, err)
	}
	return record, nil
}

// ReadRaw returns the stored payload of ref without decoding it.
// Session export copies checkpoints this way.
func (store *Store) ReadRaw(ref Ref) ([]byte, error) {
	payload, err := os.ReadFile(store.Path(ref))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: reading %s: %w", ref.Hash, err)
	}
	return payload, nil
}

// WriteRaw stores a payload produced by [Store.ReadRaw] in another
// store, verifying it against ref first.
func (store *Store) WriteRaw(ref Ref, payload []byte) error {
	encoded, err := Decompress(payload, ref.Compression)
	if err != nil {
		return err
	}
	if HashRecord(encoded) != ref.Hash {
		return fmt.Errorf("%w: %s", ErrHashMismatch, ref.Hash)
	}
	if err := os.MkdirAll(store.directory, 0o755); err != nil {
		return fmt.Errorf("checkpoint: creating %s: %w", store.directory, err)
	}
	if err := os.WriteFile(store.Path(ref), payload, 0o644); err != nil {
		return fmt.Errorf("checkpoint: storing %s: %w", ref.Hash, err)
	}
	return nil
}

// List returns the refs of every stored checkpoint, ordered by hash.
// Files that do not follow the naming scheme are ignored. A missing
// directory holds no checkpoints.
func (store *Store) List() ([]Ref, error) {
	entries, err := os.ReadDir(store.directory)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: listing %s: %w", store.directory, err)
	}

	var refs []Ref
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		hashText, compressionName, found := strings.Cut(entry.Name(), ".cbor.")
		if !found {
			continue
		}
		hash, err := ParseHash(hashText)
		if err != nil {
			continue
		}
		compression, err := ParseCompression(compressionName)
		if err != nil {
			continue
		}
		refs = append(refs, Ref{Hash: hash, Compression: compression})
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Hash.String() < refs[j].Hash.String()
	})
	return refs, nil
}
