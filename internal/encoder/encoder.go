// Package encoder turns uploaded image bytes into the base64 payload that is
// embedded in a generation request, and handles the data URI form used to
// display and save generated images.
package encoder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MIMEType is the image type declared for every payload and result.
const MIMEType = "image/png"

// chunkSize is how much of the blob is read between context checks.
const chunkSize = 64 * 1024

// ErrEncodingFailed is wrapped by every error returned from Encode.
var ErrEncodingFailed = errors.New("encoding failed")

// Payload is the transmittable form of an uploaded image.
type Payload struct {
	Base64   string
	MIMEType string
}

// DataURI returns the payload as a data URI.
func (p Payload) DataURI() string {
	return DataURI(p.MIMEType, p.Base64)
}

// NewPayload encodes r and wraps the result as a PNG payload.
func NewPayload(ctx context.Context, r io.Reader) (Payload, error) {
	b64, err := Encode(ctx, r)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Base64: b64, MIMEType: MIMEType}, nil
}

// Encode reads r to the end and returns its standard base64 encoding.
// A read error or a cancelled context aborts the encode; no partial text is
// ever returned.
func Encode(ctx context.Context, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: nil reader", ErrEncodingFailed)
	}

	var sb strings.Builder
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrEncodingFailed, err)
		}
		n, err := r.Read(buf)
		if n > 0 {
			// strings.Builder never fails a write.
			_, _ = enc.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: read blob: %w", ErrEncodingFailed, err)
		}
	}

	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("%w: flush: %w", ErrEncodingFailed, err)
	}
	return sb.String(), nil
}

// StripDataURIPrefix returns the payload portion of a data URI, i.e. the text
// after the first comma. Strings that are not data URIs are returned as-is.
func StripDataURIPrefix(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if _, payload, ok := strings.Cut(s, ","); ok {
		return payload
	}
	return s
}

// DataURI builds a base64 data URI for the given MIME type and payload.
func DataURI(mimeType, b64 string) string {
	return "data:" + mimeType + ";base64," + b64
}

// DecodeDataURI splits a base64 data URI into its MIME type and raw bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return "", nil, fmt.Errorf("not a data URI")
	}

	meta := strings.TrimPrefix(header, "data:")
	mimeType, params, _ := strings.Cut(meta, ";")
	if !strings.Contains(params, "base64") {
		return "", nil, fmt.Errorf("data URI is not base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URI payload: %w", err)
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}
	return mimeType, data, nil
}
