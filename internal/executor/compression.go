package executor

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var brotliReaderPool = sync.Pool{
	New: func() interface{} {
		return brotli.NewReader(nil)
	},
}

// decodeBody undoes the Content-Encoding values, last applied first.
// Unknown encodings leave the body as received.
func decodeBody(data []byte, encodings []string) ([]byte, error) {
	var applied []string
	for _, value := range encodings {
		for _, enc := range strings.Split(value, ",") {
			if enc = strings.ToLower(strings.TrimSpace(enc)); enc != "" {
				applied = append(applied, enc)
			}
		}
	}

	for i := len(applied) - 1; i >= 0; i-- {
		var err error
		switch applied[i] {
		case "identity":
			continue
		case "gzip", "x-gzip":
			data, err = readAllFrom(gzip.NewReader(bytes.NewReader(data)))
		case "deflate":
			data, err = inflate(data)
		case "br":
			data, err = unbrotli(data)
		default:
			return data, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s body: %w", applied[i], err)
		}
	}
	return data, nil
}

func readAllFrom(r io.ReadCloser, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// inflate accepts both zlib-wrapped and raw deflate streams
func inflate(data []byte) ([]byte, error) {
	if out, err := readAllFrom(zlib.NewReader(bytes.NewReader(data))); err == nil {
		return out, nil
	}
	return readAllFrom(flate.NewReader(bytes.NewReader(data)), nil)
}

func unbrotli(data []byte) ([]byte, error) {
	br := brotliReaderPool.Get().(*brotli.Reader)
	defer brotliReaderPool.Put(br)
	if err := br.Reset(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return io.ReadAll(br)
}
