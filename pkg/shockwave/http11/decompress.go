package http11

import (
	"errors"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// ErrUnsupportedEncoding is returned for a Content-Encoding this codec does
// not decode. Per spec, only gzip and deflate are supported; brotli and
// other codecs are an explicit non-goal.
var ErrUnsupportedEncoding = errors.New("http11: unsupported content-encoding")

// DecompressReader wraps body in a decompressing reader according to the
// value of a Content-Encoding header. An empty or "identity" encoding
// returns body unchanged. The returned reader's Close also closes body
// when body implements io.Closer.
func DecompressReader(encoding string, body io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return toReadCloser(body), nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		return &layeredCloser{Reader: gz, inner: gz, outer: body}, nil
	case "deflate":
		fr := flate.NewReader(body)
		return &layeredCloser{Reader: fr, inner: fr, outer: body}, nil
	default:
		return nil, ErrUnsupportedEncoding
	}
}

func toReadCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}

// layeredCloser closes both the decompressor and the underlying body
// reader, since klauspost/compress's Close only releases the decompressor
// state and never touches the wrapped stream.
type layeredCloser struct {
	io.Reader
	inner io.Closer
	outer io.Reader
}

func (l *layeredCloser) Close() error {
	err := l.inner.Close()
	if c, ok := l.outer.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
