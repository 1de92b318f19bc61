package similarity

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Artifact layout, little endian:
//
//	header  magic "SIMX" | format u16 | flags u16 | build u64 | n u32 |
//	        payload_len u64 | crc32c(payload) u32 | reserved u32
//	payload n x (id_len u16, id) | n*n float32 row-major
//
// With flagZstd set the payload is stored zstd-compressed and the checksum
// covers the stored bytes.
const (
	FormatVersion = 1

	// MaxProducts bounds n so a forged header cannot make the loader
	// allocate without limit.
	MaxProducts = 1 << 16

	// DefaultMaxPayloadBytes caps the stored and the decompressed payload
	// when no other limit is given. It fits about 16k products.
	DefaultMaxPayloadBytes = 1 << 30

	flagZstd uint16 = 1 << 0

	headerSize   = 36
	maxIDLen     = math.MaxUint16
	zstdOverhead = 1 << 16
)

var magic = [4]byte{'S', 'I', 'M', 'X'}

var crc32c = crc32.MakeTable(crc32.Castagnoli)

type header struct {
	Magic        [4]byte
	Format       uint16
	Flags        uint16
	BuildVersion uint64
	N            uint32
	PayloadLen   uint64
	Checksum     uint32
	Reserved     uint32
}

// An Artifact is the output of the offline similarity build.
type Artifact struct {
	BuildVersion uint64
	IDs          []string
	Scores       []float32 // row-major, len(IDs)^2
}

type EncodeOptions struct {
	Compress bool
}

// Encode validates a and writes it in the artifact format.
func Encode(w io.Writer, a Artifact, opts EncodeOptions) error {
	const op = "similarity.Encode"

	if len(a.IDs) > MaxProducts {
		return fmt.Errorf("%s: %d products exceed limit %d", op, len(a.IDs), MaxProducts)
	}
	for _, id := range a.IDs {
		if len(id) > maxIDLen {
			return fmt.Errorf("%s: product id longer than %d bytes", op, maxIDLen)
		}
	}
	if _, err := New(a.BuildVersion, a.IDs, a.Scores); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	payload := encodePayload(a.IDs, a.Scores)

	h := header{
		Magic:        magic,
		Format:       FormatVersion,
		BuildVersion: a.BuildVersion,
		N:            uint32(len(a.IDs)),
	}

	if opts.Compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		payload = enc.EncodeAll(payload, nil)
		if err := enc.Close(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		h.Flags |= flagZstd
	}

	h.PayloadLen = uint64(len(payload))
	h.Checksum = crc32.Checksum(payload, crc32c)

	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func encodePayload(ids []string, scores []float32) []byte {
	size := 4 * len(scores)
	for _, id := range ids {
		size += 2 + len(id)
	}

	buf := make([]byte, 0, size)
	for _, id := range ids {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(id)))
		buf = append(buf, id...)
	}
	for _, s := range scores {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(s))
	}
	return buf
}

type DecodeOptions struct {
	// MaxPayloadBytes bounds the payload both as stored and after
	// decompression. Zero means DefaultMaxPayloadBytes.
	MaxPayloadBytes uint64
}

func (o DecodeOptions) maxPayload() uint64 {
	if o.MaxPayloadBytes == 0 {
		return DefaultMaxPayloadBytes
	}
	return o.MaxPayloadBytes
}

// Decode reads one artifact from r with the default options.
func Decode(r io.Reader) (*Index, error) {
	return DecodeWithOptions(r, DecodeOptions{})
}

// DecodeWithOptions reads one artifact from r and builds the index. r must
// hold nothing after the artifact. Every validation failure is a
// [*CorruptArtifactError].
func DecodeWithOptions(r io.Reader, opts DecodeOptions) (*Index, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, corrupt(err, "read header")
	}
	if h.Magic != magic {
		return nil, corrupt(nil, "bad magic %q", h.Magic[:])
	}
	if h.Format != FormatVersion {
		return nil, corrupt(nil,
			"unsupported format version %d, want %d", h.Format, FormatVersion,
		)
	}
	if h.Flags&^flagZstd != 0 {
		return nil, corrupt(nil, "unknown flags %#x", h.Flags)
	}
	if h.N == 0 || h.N > MaxProducts {
		return nil, corrupt(nil, "product count %d out of range", h.N)
	}

	n := uint64(h.N)
	rawBound := min(n*(2+maxIDLen)+n*n*4, opts.maxPayload())
	if minRaw := n*2 + n*n*4; minRaw > rawBound {
		return nil, corrupt(nil,
			"%d products need at least %d bytes, limit is %d", n, minRaw, rawBound,
		)
	}
	storedBound := rawBound
	if h.Flags&flagZstd != 0 {
		storedBound += zstdOverhead
	}
	if h.PayloadLen > storedBound {
		return nil, corrupt(nil,
			"payload of %d bytes exceeds limit %d for %d products",
			h.PayloadLen, storedBound, n,
		)
	}

	// Grow with the data actually read rather than trusting the header.
	var stored bytes.Buffer
	if _, err := io.CopyN(&stored, r, int64(h.PayloadLen)); err != nil {
		return nil, corrupt(err, "read payload")
	}
	payload := stored.Bytes()
	if err := expectEOF(r); err != nil {
		return nil, err
	}

	if sum := crc32.Checksum(payload, crc32c); sum != h.Checksum {
		return nil, corrupt(nil,
			"checksum mismatch: stored %#08x, computed %#08x", h.Checksum, sum,
		)
	}

	if h.Flags&flagZstd != 0 {
		raw, err := decompress(payload, rawBound)
		if err != nil {
			return nil, corrupt(err, "decompress payload")
		}
		payload = raw
	}

	ids, scores, err := decodePayload(int(h.N), payload)
	if err != nil {
		return nil, err
	}

	return New(h.BuildVersion, ids, scores)
}

func expectEOF(r io.Reader) error {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return corrupt(err, "read after payload")
	}
	return corrupt(nil, "trailing data after payload")
}

func decompress(data []byte, limit uint64) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(limit))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

func decodePayload(n int, payload []byte) ([]string, []float32, error) {
	buf := bytes.NewReader(payload)

	ids := make([]string, n)
	for i := range ids {
		var l uint16
		if err := binary.Read(buf, binary.LittleEndian, &l); err != nil {
			return nil, nil, corrupt(err, "read id length at row %d", i)
		}
		id := make([]byte, l)
		if _, err := io.ReadFull(buf, id); err != nil {
			return nil, nil, corrupt(err, "read id at row %d", i)
		}
		ids[i] = string(id)
	}

	cells := n * n
	if buf.Len() != 4*cells {
		return nil, nil, corrupt(nil,
			"matrix section has %d bytes, want %d", buf.Len(), 4*cells,
		)
	}

	rest := payload[len(payload)-buf.Len():]
	scores := make([]float32, cells)
	for i := range scores {
		scores[i] = math.Float32frombits(binary.LittleEndian.Uint32(rest[4*i:]))
	}
	return ids, scores, nil
}
