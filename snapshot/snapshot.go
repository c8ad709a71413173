// Package snapshot stores versioned records in self-checking frames.
//
// A frame is a fixed header followed by the encoded record:
//
//	"GVSN" | frame version | format id | compression | BLAKE3-256 digest
//	       | uvarint payload length | uvarint stored length | stored bytes
//
// The digest covers the uncompressed payload, which is an ordinary govers
// encoding (map envelope by default) in the recorded format. Reading a frame
// verifies the digest before anything is decoded.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/reoring/govers"
	"github.com/reoring/govers/format"
	fbinary "github.com/reoring/govers/format/binary"
	"github.com/reoring/govers/format/cbor"
	"github.com/reoring/govers/format/json"
	"github.com/reoring/govers/format/yaml"
)

// Magic starts every frame.
const Magic = "GVSN"

// FrameVersion is the header layout written by this package.
const FrameVersion = 1

// MaxPayload bounds the payload length accepted from a header.
const MaxPayload = 1 << 30

const headerSize = len(Magic) + 3 + blake3Size

const blake3Size = 32

// Format ids stored in the header.
const (
	FormatJSON   byte = 1
	FormatBinary byte = 2
	FormatYAML   byte = 3
	FormatCBOR   byte = 4
)

// FormatID returns the header id of f.
func FormatID(f format.Format) (byte, error) {
	switch f.Name() {
	case "json":
		return FormatJSON, nil
	case "binary":
		return FormatBinary, nil
	case "yaml":
		return FormatYAML, nil
	case "cbor":
		return FormatCBOR, nil
	}
	return 0, fmt.Errorf("format %q has no snapshot id", f.Name())
}

// FormatByID returns the format stored under id.
func FormatByID(id byte) (format.Format, error) {
	switch id {
	case FormatJSON:
		return json.Default, nil
	case FormatBinary:
		return fbinary.Default, nil
	case FormatYAML:
		return yaml.Default, nil
	case FormatCBOR:
		return cbor.Default, nil
	}
	return nil, fmt.Errorf("unknown format id %d", id)
}

// Options configures Write.
type Options struct {
	// Format nil means binary.
	Format      format.Format
	Compression Compression
	// Mode and Registry are passed to govers.Encode.
	Mode     govers.Mode
	Registry *govers.Registry
}

func (o Options) format() format.Format {
	if o.Format == nil {
		return fbinary.Default
	}
	return o.Format
}

// Frame is a verified frame with its payload decompressed.
type Frame struct {
	Version     uint8
	Format      format.Format
	Compression Compression
	Digest      [32]byte
	// StoredSize is the on-disk payload length.
	StoredSize int
	Payload    []byte
}

// Header reports the payload envelope without decoding the record.
func (f *Frame) Header(opts ...govers.DecodeOpt) (govers.Header, error) {
	return govers.ReadHeader(f.Payload, withFormat(opts, f.Format)...)
}

// Marshal encodes v and returns the complete frame bytes.
func Marshal(v any, opt Options) ([]byte, error) {
	f := opt.format()
	id, err := FormatID(f)
	if err != nil {
		return nil, issue(govers.CodeUnsupported, err.Error())
	}
	payload, err := govers.Encode(v, govers.EncodeOpt{Format: f, Mode: opt.Mode, Registry: opt.Registry})
	if err != nil {
		return nil, err
	}
	stored, used, err := compress(payload, opt.Compression)
	if err != nil {
		return nil, issue(govers.CodeUnsupported, err.Error())
	}
	sum := blake3.Sum256(payload)

	out := make([]byte, 0, headerSize+2*binary.MaxVarintLen64+len(stored))
	out = append(out, Magic...)
	out = append(out, FrameVersion, id, byte(used))
	out = append(out, sum[:]...)
	out = binary.AppendUvarint(out, uint64(len(payload)))
	out = binary.AppendUvarint(out, uint64(len(stored)))
	out = append(out, stored...)
	govers.Logger().Debug("snapshot frame encoded",
		zap.String("format", f.Name()),
		zap.Stringer("compression", used),
		zap.Int("payload", len(payload)),
		zap.Int("stored", len(stored)))
	return out, nil
}

// Write encodes v as one frame on w.
func Write(w io.Writer, v any, opt Options) error {
	b, err := Marshal(v, opt)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("snapshot: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r and verifies its digest.
func ReadFrame(r io.Reader) (*Frame, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		b := bufio.NewReader(r)
		br, r = b, b
	}
	var head [headerSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, readErr("frame header", err)
	}
	if string(head[:len(Magic)]) != Magic {
		return nil, issue(govers.CodeParseError, "not a snapshot frame")
	}
	p := head[len(Magic):]
	if p[0] != FrameVersion {
		return nil, issue(govers.CodeUnsupported, fmt.Sprintf("frame version %d is not supported", p[0]))
	}
	f, err := FormatByID(p[1])
	if err != nil {
		return nil, issue(govers.CodeUnsupported, err.Error())
	}
	fr := &Frame{Version: p[0], Format: f, Compression: Compression(p[2])}
	copy(fr.Digest[:], p[3:])

	size, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, readErr("payload length", err)
	}
	stored, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, readErr("stored length", err)
	}
	if size > MaxPayload || stored > MaxPayload {
		return nil, issue(govers.CodeTruncated, "payload exceeds the frame size limit")
	}
	// the lengths are untrusted, so memory grows with the bytes actually read
	buf, err := io.ReadAll(io.LimitReader(r, int64(stored)))
	if err != nil {
		return nil, readErr("payload", err)
	}
	if uint64(len(buf)) != stored {
		return nil, readErr("payload", io.ErrUnexpectedEOF)
	}
	fr.StoredSize = len(buf)
	if fr.Payload, err = decompress(buf, fr.Compression, int(size)); err != nil {
		return nil, issue(govers.CodeParseError, err.Error())
	}
	if blake3.Sum256(fr.Payload) != fr.Digest {
		return nil, issue(govers.CodeChecksumMismatch, "payload digest does not match the frame header")
	}
	return fr, nil
}

// Unmarshal verifies the frame in data and decodes its record.
func Unmarshal[T any](data []byte, opts ...govers.DecodeOpt) (T, error) {
	return Read[T](bytes.NewReader(data), opts...)
}

// Read reads one frame from r and decodes its record into a T. The frame's
// format replaces any format given in opts.
func Read[T any](r io.Reader, opts ...govers.DecodeOpt) (T, error) {
	fr, err := ReadFrame(r)
	if err != nil {
		var zero T
		return zero, err
	}
	return govers.Decode[T](fr.Payload, withFormat(opts, fr.Format)...)
}

func withFormat(opts []govers.DecodeOpt, f format.Format) []govers.DecodeOpt {
	var opt govers.DecodeOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	opt.Format = f
	return []govers.DecodeOpt{opt}
}

func issue(code, msg string) govers.Issues {
	return govers.AppendIssues(nil, govers.Issue{Code: code, Message: msg, Offset: -1})
}

func readErr(what string, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return govers.AppendIssues(nil, govers.Issue{
			Code: govers.CodeTruncated, Message: "frame ends inside the " + what, Cause: err, Offset: -1,
		})
	}
	return fmt.Errorf("snapshot: read %s: %w", what, err)
}
