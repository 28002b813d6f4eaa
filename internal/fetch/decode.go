// File: internal/fetch/decode.go
package fetch

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is advertised on requests that do not set their own.
const AcceptEncoding = "br, gzip, deflate"

// DecodingTransport is an http.RoundTripper that asks for compressed
// responses and decodes br, gzip and deflate bodies.
type DecodingTransport struct {
	next http.RoundTripper
}

// NewDecodingTransport wraps next, or http.DefaultTransport when nil.
func NewDecodingTransport(next http.RoundTripper) *DecodingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &DecodingTransport{next: next}
}

func (t *DecodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := Decode(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

// layeredBody closes the decoder and then the body it reads from.
type layeredBody struct {
	io.Reader
	decoder io.Closer
	inner   io.ReadCloser
}

func (b *layeredBody) Close() error {
	var err error
	if b.decoder != nil {
		err = b.decoder.Close()
	}
	return errors.Join(err, b.inner.Close())
}

// Decode replaces resp.Body with a decoded stream. Encodings are undone in
// reverse order of application. On error the body may be partially consumed.
func Decode(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	var encodings []string
	for _, v := range resp.Header.Values("Content-Encoding") {
		for _, e := range strings.Split(v, ",") {
			if e = strings.ToLower(strings.TrimSpace(e)); e != "" && e != "identity" {
				encodings = append(encodings, e)
			}
		}
	}
	if len(encodings) == 0 {
		return nil
	}

	for i := len(encodings) - 1; i >= 0; i-- {
		body := resp.Body
		switch encodings[i] {
		case "gzip", "x-gzip":
			zr, err := gzip.NewReader(body)
			if err != nil {
				return fmt.Errorf("gzip: %w", err)
			}
			resp.Body = &layeredBody{Reader: zr, decoder: zr, inner: body}
		case "deflate":
			r := deflateReader(body)
			resp.Body = &layeredBody{Reader: r, decoder: r, inner: body}
		case "br":
			resp.Body = &layeredBody{Reader: brotli.NewReader(body), inner: body}
		default:
			return fmt.Errorf("unsupported Content-Encoding %q", encodings[i])
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// deflateReader accepts both zlib-wrapped and raw deflate streams; servers
// disagree on what "deflate" means.
func deflateReader(r io.Reader) io.ReadCloser {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err == nil && isZlibHeader(header) {
		if zr, err := zlib.NewReader(br); err == nil {
			return zr
		}
	}
	return flate.NewReader(br)
}

func isZlibHeader(h []byte) bool {
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
