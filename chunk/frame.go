package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/lakecat/codec"
	"github.com/pierrec/lz4/v4"
)

var (
	frameMagic   = [4]byte{'L', 'K', 'C', '0'}
	frameVersion = uint16(1)
)

// DecodeError reports a malformed chunk frame. The original cause (if any)
// is available via errors.Unwrap.
type DecodeError struct {
	Reason string
	cause  error
}

func (e *DecodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("chunk decode: %s: %v", e.Reason, e.cause)
	}
	return "chunk decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.cause }

// Encode serializes the chunk into a self-describing frame: a fixed header
// naming the codec, followed by the lz4-compressed encoded body. Frames are
// byte-stable for a fixed codec, which the manifest layer relies on for
// content checks.
func Encode(c *Chunk, cd codec.Codec) ([]byte, error) {
	if cd == nil {
		cd = codec.Default
	}
	body, err := cd.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode chunk %s: %w", c.ID, err)
	}

	var buf bytes.Buffer
	buf.Write(frameMagic[:])

	var fixed [4]byte
	binary.LittleEndian.PutUint16(fixed[0:2], frameVersion)
	binary.LittleEndian.PutUint16(fixed[2:4], uint16(len(cd.Name())))
	buf.Write(fixed[:])
	buf.WriteString(cd.Name())

	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("compress chunk %s: %w", c.ID, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress chunk %s: %w", c.ID, err)
	}
	return buf.Bytes(), nil
}

// Decode parses a frame produced by Encode, selecting the codec recorded in
// the header.
func Decode(data []byte) (*Chunk, error) {
	if len(data) < 8 {
		return nil, &DecodeError{Reason: "frame too short"}
	}
	if !bytes.Equal(data[:4], frameMagic[:]) {
		return nil, &DecodeError{Reason: "invalid frame magic"}
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != frameVersion {
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported frame version %d", version)}
	}
	nameLen := int(binary.LittleEndian.Uint16(data[6:8]))
	if len(data) < 8+nameLen {
		return nil, &DecodeError{Reason: "truncated codec name"}
	}
	name := string(data[8 : 8+nameLen])
	cd, ok := codec.ByName(name)
	if !ok {
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown codec %q", name)}
	}

	zr := lz4.NewReader(bytes.NewReader(data[8+nameLen:]))
	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, &DecodeError{Reason: "decompress body", cause: err}
	}

	var c Chunk
	if err := cd.Unmarshal(body, &c); err != nil {
		return nil, &DecodeError{Reason: "unmarshal body", cause: err}
	}
	return &c, nil
}
