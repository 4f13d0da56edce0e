package packet

import (
	"bytes"
	"compress/gzip"
	"io"

	pkgerrors "github.com/pkg/errors"
)

func gzipCompress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	zw := gzip.NewWriter(&out)
	if _, err := zw.Write(data); err != nil {
		return nil, pkgerrors.Wrap(err, "gzip write")
	}
	if err := zw.Close(); err != nil {
		return nil, pkgerrors.Wrap(err, "gzip close")
	}
	return out.Bytes(), nil
}

func gzipDecompress(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "gzip open")
	}
	defer zr.Close()

	// LimitReader keeps a hostile tiny-input/huge-output bomb from
	// exhausting memory on the decode path.
	out, err := io.ReadAll(io.LimitReader(zr, MaxPacketSize))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "gzip inflate")
	}
	return out, nil
}
