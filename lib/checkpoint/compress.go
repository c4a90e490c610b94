// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names the codec a checkpoint payload is stored with. The
// name is both the file extension and the value recorded in the
// context_compression event, so the values are format constants.
type Compression string

const (
	// CompressionNone stores the encoded record as is. Used when
	// neither codec makes the payload smaller.
	CompressionNone Compression = "raw"

	// CompressionLZ4 is LZ4 block compression, used for records under
	// [SmallRecordSize] where zstd's frame overhead dominates.
	CompressionLZ4 Compression = "lz4"

	// CompressionZstd is zstd at the default level. Checkpoints are
	// conversation text, which zstd compresses several times over.
	CompressionZstd Compression = "zst"
)

// SmallRecordSize is the encoded size below which LZ4 is preferred.
const SmallRecordSize = 4 * 1024

// maxRecordSize bounds the declared uncompressed size read from a
// payload header, so a corrupt header cannot trigger a huge allocation.
const maxRecordSize = 256 << 20

// ParseCompression validates a compression name read from disk.
func ParseCompression(name string) (Compression, error) {
	switch compression := Compression(name); compression {
	case CompressionNone, CompressionLZ4, CompressionZstd:
		return compression, nil
	}
	return "", fmt.Errorf("checkpoint: unknown compression %q", name)
}

var errIncompressible = errors.New("data is incompressible")

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll and DecodeAll, so one of each serves the process.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("checkpoint: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("checkpoint: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress picks a codec for data and returns the payload. The payload
// starts with the uncompressed length as a uvarint, which LZ4 block
// decoding needs and which lets every codec verify its output size.
func Compress(data []byte) ([]byte, Compression) {
	preferred := CompressionZstd
	if len(data) < SmallRecordSize {
		preferred = CompressionLZ4
	}

	var body []byte
	var err error
	switch preferred {
	case CompressionLZ4:
		body, err = compressLZ4(data)
	default:
		body, err = compressZstd(data)
	}
	if err != nil {
		preferred, body = CompressionNone, data
	}

	payload := binary.AppendUvarint(make([]byte, 0, len(body)+binary.MaxVarintLen64), uint64(len(data)))
	return append(payload, body...), preferred
}

// Decompress reverses [Compress].
func Decompress(payload []byte, compression Compression) ([]byte, error) {
	size, headerLength := binary.Uvarint(payload)
	if headerLength <= 0 {
		return nil, fmt.Errorf("checkpoint: payload has no size header")
	}
	if size > maxRecordSize {
		return nil, fmt.Errorf("checkpoint: declared size %d exceeds limit %d", size, maxRecordSize)
	}
	body := payload[headerLength:]

	switch compression {
	case CompressionNone:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("checkpoint: raw payload is %d bytes, header says %d", len(body), size)
		}
		return body, nil
	case CompressionLZ4:
		return decompressLZ4(body, int(size))
	case CompressionZstd:
		return decompressZstd(body, int(size))
	}
	return nil, fmt.Errorf("checkpoint: unsupported compression %q", compression)
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("checkpoint: lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("checkpoint: zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
