// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/parley/lib/checkpoint"
	"github.com/bureau-foundation/parley/lib/clock"
	"github.com/bureau-foundation/parley/lib/codec"
	"github.com/bureau-foundation/parley/lib/session"
	"github.com/bureau-foundation/parley/lib/sessionlog"
)

// FormatVersion is the bundle layout written by this package.
const FormatVersion = 1

// ageHeader starts every age-encrypted file.
const ageHeader = "age-encryption.org/"

// maxBundleSize bounds the decompressed bundle.
const maxBundleSize = 1 << 30

// ErrEncrypted is returned by [Import] for an encrypted bundle when no
// identities were given.
var ErrEncrypted = errors.New("archive: bundle is encrypted, an identity is required")

// Bundle is the decoded content of an export file.
type Bundle struct {
	Version     int          `cbor:"version"`
	SessionID   string       `cbor:"session_id"`
	ExportedAt  time.Time    `cbor:"exported_at"`
	Events      []byte       `cbor:"events"`
	Metadata    []byte       `cbor:"metadata,omitempty"`
	Checkpoints []Checkpoint `cbor:"checkpoints,omitempty"`
}

// Checkpoint is one compressed checkpoint file carried verbatim.
type Checkpoint struct {
	Hash        string `cbor:"hash"`
	Compression string `cbor:"compression"`
	Payload     []byte `cbor:"payload"`
}

// ExportOptions configures [Export].
type ExportOptions struct {
	// Recipients, when non-empty, encrypts the bundle to every one of
	// them.
	Recipients []age.Recipient

	Clock clock.Clock
}

// Export writes session id under root to output as a bundle.
func Export(root, id string, output io.Writer, options ExportOptions) (Bundle, error) {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if err := session.ValidateID(id); err != nil {
		return Bundle{}, err
	}
	directory := session.Directory(root, id)
	if info, err := os.Stat(directory); err != nil || !info.IsDir() {
		return Bundle{}, fmt.Errorf("archive: session %s: %w", id, session.ErrNotFound)
	}

	bundle := Bundle{
		Version:    FormatVersion,
		SessionID:  id,
		ExportedAt: options.Clock.Now().UTC(),
	}
	var err error
	if bundle.Events, err = readOptional(filepath.Join(directory, sessionlog.EventsFile)); err != nil {
		return Bundle{}, err
	}
	if bundle.Metadata, err = readOptional(filepath.Join(directory, sessionlog.MetadataFile)); err != nil {
		return Bundle{}, err
	}

	store := checkpoint.NewStore(session.CheckpointDirectory(directory))
	refs, err := store.List()
	if err != nil {
		return Bundle{}, err
	}
	for _, ref := range refs {
		payload, err := store.ReadRaw(ref)
		if err != nil {
			return Bundle{}, err
		}
		bundle.Checkpoints = append(bundle.Checkpoints, Checkpoint{
			Hash:        ref.Hash.String(),
			Compression: string(ref.Compression),
			Payload:     payload,
		})
	}

	encoded, err := codec.Marshal(bundle)
	if err != nil {
		return Bundle{}, fmt.Errorf("archive: encoding bundle: %w", err)
	}

	sink := output
	var encryptor io.WriteCloser
	if len(options.Recipients) > 0 {
		encryptor, err = age.Encrypt(output, options.Recipients...)
		if err != nil {
			return Bundle{}, fmt.Errorf("archive: creating age encryptor: %w", err)
		}
		sink = encryptor
	}
	compressor, err := zstd.NewWriter(sink, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return Bundle{}, fmt.Errorf("archive: creating zstd encoder: %w", err)
	}
	if _, err := compressor.Write(encoded); err != nil {
		compressor.Close()
		return Bundle{}, fmt.Errorf("archive: writing bundle: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return Bundle{}, fmt.Errorf("archive: finishing compression: %w", err)
	}
	if encryptor != nil {
		if err := encryptor.Close(); err != nil {
			return Bundle{}, fmt.Errorf("archive: finalizing encryption: %w", err)
		}
	}
	return bundle, nil
}

// Read decodes a bundle, decrypting it with identities when it is
// encrypted.
func Read(input io.Reader, identities []age.Identity) (Bundle, error) {
	buffered := bufio.NewReader(input)
	peek, _ := buffered.Peek(len(ageHeader))

	var source io.Reader = buffered
	if string(peek) == ageHeader {
		if len(identities) == 0 {
			return Bundle{}, ErrEncrypted
		}
		decrypted, err := age.Decrypt(buffered, identities...)
		if err != nil {
			return Bundle{}, fmt.Errorf("archive: decrypting: %w", err)
		}
		source = decrypted
	}

	decoder, err := zstd.NewReader(source, zstd.WithDecoderMaxMemory(maxBundleSize))
	if err != nil {
		return Bundle{}, fmt.Errorf("archive: creating zstd decoder: %w", err)
	}
	defer decoder.Close()
	encoded, err := io.ReadAll(io.LimitReader(decoder, maxBundleSize+1))
	if err != nil {
		return Bundle{}, fmt.Errorf("archive: decompressing: %w", err)
	}
	if len(encoded) > maxBundleSize {
		return Bundle{}, fmt.Errorf("archive: bundle exceeds %d bytes", maxBundleSize)
	}

	var bundle Bundle
	if err := codec.Unmarshal(encoded, &bundle); err != nil {
		return Bundle{}, fmt.Errorf("archive: decoding bundle: %w", err)
	}
	if bundle.Version != FormatVersion {
		return Bundle{}, fmt.Errorf("archive: unsupported bundle version %d", bundle.Version)
	}
	if err := session.ValidateID(bundle.SessionID); err != nil {
		return Bundle{}, fmt.Errorf("archive: %w", err)
	}
	return bundle, nil
}

// Import restores a bundle under root and returns the session ID it
// was given: the exported ID, or that ID with a numeric suffix when a
// session of that name already exists. A bundle that fails
// verification leaves no directory behind.
func Import(root string, input io.Reader, identities []age.Identity) (string, error) {
	bundle, err := Read(input, identities)
	if err != nil {
		return "", err
	}

	id, directory, err := session.Claim(root, bundle.SessionID)
	if err != nil {
		return "", err
	}
	if err := restore(directory, id, bundle); err != nil {
		os.RemoveAll(directory)
		return "", err
	}
	return id, nil
}

func restore(directory, id string, bundle Bundle) error {
	store := checkpoint.NewStore(session.CheckpointDirectory(directory))
	for _, entry := range bundle.Checkpoints {
		hash, err := checkpoint.ParseHash(entry.Hash)
		if err != nil {
			return fmt.Errorf("archive: checkpoint %q: %w", entry.Hash, err)
		}
		compression, err := checkpoint.ParseCompression(entry.Compression)
		if err != nil {
			return fmt.Errorf("archive: checkpoint %s: %w", entry.Hash, err)
		}
		if err := store.WriteRaw(checkpoint.Ref{Hash: hash, Compression: compression}, entry.Payload); err != nil {
			return err
		}
	}

	if len(bundle.Events) > 0 {
		if err := sessionlog.WriteFileAtomic(filepath.Join(directory, sessionlog.EventsFile), bundle.Events, 0o644); err != nil {
			return err
		}
	}
	if len(bundle.Metadata) > 0 {
		metadata, err := sessionlog.DecodeMetadata(bundle.Metadata)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		metadata.SessionID = id
		logStore, err := sessionlog.Open(directory, nil)
		if err != nil {
			return err
		}
		if err := logStore.WriteMetadata(metadata); err != nil {
			return err
		}
	}
	return nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: reading %s: %w", path, err)
	}
	return data, nil
}

// ParseRecipients parses age1... public keys.
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("archive: parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// LoadIdentities reads an age identity file: one AGE-SECRET-KEY-1...
// per line, with # comments.
func LoadIdentities(path string) ([]age.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("archive: reading identity file: %w", err)
	}
	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("archive: parsing identity file %s: %w", path, err)
	}
	return identities, nil
}
