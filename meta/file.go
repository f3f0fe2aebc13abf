package meta

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

// Compression indicates how the YAML payload of a graph file is stored.
type Compression uint8

const (
	CompNone Compression = 0
	CompZlib Compression = 1
	CompZstd Compression = 2
)

func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none":
		return CompNone, nil
	case "zlib":
		return CompZlib, nil
	case "zstd":
		return CompZstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q: %w", s, voxerr.ErrConfigurationInvalid)
}

const (
	fileMagic   = "VOXGRAPH"
	fileVersion = 1
	// magic, version, compression, raw length, checksum
	fileHeaderSize = 8 + 1 + 1 + 4 + 8
)

// EncodeFile wraps the YAML form of r in a graph file: an 8-byte magic, the
// format version, the compression, the uncompressed length and an xxhash of
// the uncompressed payload, followed by the (possibly compressed) payload.
func EncodeFile(r *IOGraph, comp Compression) ([]byte, error) {
	raw, err := r.Marshal()
	if err != nil {
		return nil, err
	}
	var content []byte
	switch comp {
	case CompNone:
		content = raw
	case CompZlib:
		var buf bytes.Buffer
		zw, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		content = buf.Bytes()
	case CompZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		content = enc.EncodeAll(raw, nil)
	default:
		return nil, fmt.Errorf("unsupported compression %d: %w", comp, voxerr.ErrConfigurationInvalid)
	}

	var out bytes.Buffer
	out.WriteString(fileMagic)
	_ = binary.Write(&out, binary.LittleEndian, uint8(fileVersion))
	_ = binary.Write(&out, binary.LittleEndian, uint8(comp))
	_ = binary.Write(&out, binary.LittleEndian, uint32(len(raw)))
	_ = binary.Write(&out, binary.LittleEndian, xxhash.Sum64(raw))
	_, _ = out.Write(content)
	return out.Bytes(), nil
}

// DecodeFile parses a graph file and returns its records and the compression
// it was stored with.
func DecodeFile(data []byte) (*IOGraph, Compression, error) {
	if len(data) < fileHeaderSize || string(data[:8]) != fileMagic {
		return nil, 0, fmt.Errorf("not a graph file: %w", voxerr.ErrConfigurationInvalid)
	}
	if v := data[8]; v != fileVersion {
		return nil, 0, fmt.Errorf("unsupported graph file version %d: %w", v, voxerr.ErrConfigurationInvalid)
	}
	comp := Compression(data[9])
	rawLen := binary.LittleEndian.Uint32(data[10:14])
	sum := binary.LittleEndian.Uint64(data[14:22])
	content := data[fileHeaderSize:]

	var raw []byte
	switch comp {
	case CompNone:
		raw = content
	case CompZlib:
		zr, err := zlib.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, 0, fmt.Errorf("zlib: %v: %w", err, voxerr.ErrConfigurationInvalid)
		}
		defer zr.Close()
		b, err := io.ReadAll(io.LimitReader(zr, int64(rawLen)+1))
		if err != nil {
			return nil, 0, fmt.Errorf("zlib: %v: %w", err, voxerr.ErrConfigurationInvalid)
		}
		raw = b
	case CompZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, 0, err
		}
		defer dec.Close()
		b, err := dec.DecodeAll(content, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("zstd: %v: %w", err, voxerr.ErrConfigurationInvalid)
		}
		raw = b
	default:
		return nil, 0, fmt.Errorf("unsupported compression %d: %w", comp, voxerr.ErrConfigurationInvalid)
	}
	if uint32(len(raw)) != rawLen {
		return nil, 0, fmt.Errorf("payload length %d, header says %d: %w", len(raw), rawLen, voxerr.ErrConfigurationInvalid)
	}
	if xxhash.Sum64(raw) != sum {
		return nil, 0, fmt.Errorf("payload checksum mismatch: %w", voxerr.ErrConfigurationInvalid)
	}
	r, err := UnmarshalIOGraph(raw)
	if err != nil {
		return nil, 0, err
	}
	return r, comp, nil
}

// LoadFile reads and decodes a graph file.
func LoadFile(path string) (*IOGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", path, err, voxerr.ErrIO)
	}
	r, _, err := DecodeFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func SaveFile(path string, r *IOGraph, comp Compression) error {
	data, err := EncodeFile(r, comp)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %v: %w", path, err, voxerr.ErrIO)
	}
	return nil
}
