package irtext

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
)

// ErrUnknownCompression is returned by OpenAs for an unrecognized explicit
// codec name.
var ErrUnknownCompression = fmt.Errorf("unknown compression codec")

// Open opens p for reading, transparently decompressing by file extension
// (.gz, .bz2, .zst/.zstd), matching the on-the-fly decompression a stream
// source elsewhere in this tree offers its own input files.
func Open(p string) (io.ReadCloser, error) {
	return OpenAs(p, codecFor(path.Ext(p)))
}

// OpenAs opens p, applying an explicitly named codec ("gz"/"gzip",
// "bzip2"/"bz2", "zstd"/"zst", "none") instead of inferring it from the
// file extension.
func OpenAs(p string, codec string) (io.ReadCloser, error) {
	fh, err := os.Open(p)
	if err != nil {
		return nil, err
	}

	switch codec {
	case "none", "":
		return fh, nil
	case "gz", "gzip":
		r, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, err
		}
		return &wrapped{r: r, close: r.Close, under: fh}, nil
	case "bz2", "bzip2":
		r, err := bzip2.NewReader(fh, nil)
		if err != nil {
			fh.Close()
			return nil, err
		}
		return &wrapped{r: r, close: r.Close, under: fh}, nil
	case "zst", "zstd", "zstandard":
		r, err := zstd.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, err
		}
		return &wrapped{r: r, close: func() error { r.Close(); return nil }, under: fh}, nil
	default:
		fh.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, codec)
	}
}

func codecFor(ext string) string {
	switch ext {
	case ".gz":
		return "gz"
	case ".bz2":
		return "bz2"
	case ".zst", ".zstd":
		return "zstd"
	default:
		return "none"
	}
}

// wrapped pairs a decompressing reader with the underlying file so both get
// closed together; the decompressor's own Close runs first since a zstd
// reader in particular drains internal goroutines against its source.
type wrapped struct {
	r     io.Reader
	close func() error
	under io.Closer
}

func (w *wrapped) Read(p []byte) (int, error) { return w.r.Read(p) }

func (w *wrapped) Close() error {
	cerr := w.close()
	if uerr := w.under.Close(); uerr != nil && cerr == nil {
		cerr = uerr
	}
	return cerr
}
