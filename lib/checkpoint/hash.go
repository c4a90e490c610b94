// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 keyed digest of a checkpoint's encoded
// record. It names the checkpoint file and is recorded in the
// context_compression event that created it.
type Hash [32]byte

// domainKey separates checkpoint hashes from any other BLAKE3 use: the
// same bytes hashed under another key give a different digest. The
// value is the ASCII domain name, zero-padded to 32 bytes, so it reads
// plainly in a hex dump. Changing it orphans every stored checkpoint.
var domainKey = [32]byte{
	'p', 'a', 'r', 'l', 'e', 'y', '.', 's', 'e', 's', 's', 'i', 'o', 'n', '.',
	'c', 'h', 'e', 'c', 'k', 'p', 'o', 'i', 'n', 't', 0, 0, 0, 0, 0, 0, 0,
}

// HashRecord computes the checkpoint-domain hash of an encoded record.
// Hashes are always computed over uncompressed bytes, so the address
// does not depend on which codec stored the record.
func HashRecord(encoded []byte) Hash {
	// NewKeyed only fails for a key that is not 32 bytes.
	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		panic("checkpoint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(encoded)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the lowercase hex form used in file names and events.
func (hash Hash) String() string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses the 64-character hex form of a Hash.
func ParseHash(text string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return hash, fmt.Errorf("checkpoint: parsing hash %q: %w", text, err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("checkpoint: hash is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}
