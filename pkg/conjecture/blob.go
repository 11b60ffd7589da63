package conjecture

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	blobRaw        = 0x00
	blobCompressed = 0x01

	// maxPrintedBlob is the longest blob included in reports.
	maxPrintedBlob = 1000
)

// EncodeFailure encodes a buffer as a printable blob: base64 of a marker byte
// followed by either the raw bytes or their zlib compression, whichever is
// shorter.
func EncodeFailure(buf []byte) string {
	var compressed bytes.Buffer

	w := zlib.NewWriter(&compressed)
	_, _ = w.Write(buf)
	_ = w.Close()

	var payload []byte
	if compressed.Len() < len(buf) {
		payload = append([]byte{blobCompressed}, compressed.Bytes()...)
	} else {
		payload = append([]byte{blobRaw}, buf...)
	}

	return base64.StdEncoding.EncodeToString(payload)
}

// DecodeFailure reverses [EncodeFailure]. Malformed blobs return an error
// wrapping [ErrInvalidArgument].
func DecodeFailure(blob string) ([]byte, error) {
	payload, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoded string %q", ErrInvalidArgument, blob)
	}

	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: could not decode blob %q: empty payload", ErrInvalidArgument, blob)
	}

	switch payload[0] {
	case blobRaw:
		return payload[1:], nil
	case blobCompressed:
		r, err := zlib.NewReader(bytes.NewReader(payload[1:]))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid zlib compression for blob %q", ErrInvalidArgument, blob)
		}
		defer func() { _ = r.Close() }()

		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid zlib compression for blob %q", ErrInvalidArgument, blob)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: could not decode blob %q: invalid start byte %#x", ErrInvalidArgument, blob, payload[0])
	}
}
