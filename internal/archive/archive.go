// Package archive implements the compressed-tape-archive convention used
// both for the cache store's "Compressed" storage strategy and for rollback
// snapshots: a directory tree packed into a single gzip-compressed tar
// file, verified by listing it to completion.
package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/xerrors"
)

// Pack writes the contents of srcDir into a new gzip-compressed tar file at
// destFile, overwriting any existing file. Symlinks are stored as symlinks,
// not followed.
func Pack(srcDir, destFile string) (bytesWritten int64, err error) {
	f, err := os.Create(destFile)
	if err != nil {
		return 0, xerrors.Errorf("archive.Pack: create %s: %w", destFile, err)
	}
	defer f.Close()

	cw := &countingWriter{w: f}
	gw := gzip.NewWriter(cw)
	tw := tar.NewWriter(gw)

	walkErr := filepath.Walk(srcDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		var link string
		if fi.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if fi.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if fi.Mode().IsRegular() {
			r, err := os.Open(path)
			if err != nil {
				return err
			}
			defer r.Close()
			if _, err := io.Copy(tw, r); err != nil {
				return err
			}
		}
		return nil
	})
	if walkErr != nil {
		return 0, xerrors.Errorf("archive.Pack: walk %s: %w", srcDir, walkErr)
	}
	if err := tw.Close(); err != nil {
		return 0, xerrors.Errorf("archive.Pack: close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return 0, xerrors.Errorf("archive.Pack: close gzip: %w", err)
	}
	return cw.n, nil
}

// Unpack extracts the gzip-compressed tar file srcFile into destDir, which
// is created if it does not exist.
func Unpack(srcFile, destDir string) error {
	f, err := os.Open(srcFile)
	if err != nil {
		return xerrors.Errorf("archive.Unpack: open %s: %w", srcFile, err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return xerrors.Errorf("archive.Unpack: gzip reader: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return xerrors.Errorf("archive.Unpack: mkdir %s: %w", destDir, err)
	}

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return xerrors.Errorf("archive.Unpack: read entry: %w", err)
		}
		// path traversal guard: reject entries that escape destDir.
		cleaned := filepath.Clean(hdr.Name)
		if strings.HasPrefix(cleaned, "..") {
			return xerrors.Errorf("archive.Unpack: entry %q escapes archive root", hdr.Name)
		}
		target := filepath.Join(destDir, cleaned)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
	return nil
}

// Verify proves an archive is intact by listing it to completion and
// requiring a non-zero size. It returns the number of entries found.
func Verify(path string) (entries int, err error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, xerrors.Errorf("archive.Verify: stat: %w", err)
	}
	if fi.Size() == 0 {
		return 0, xerrors.Errorf("archive.Verify: %s is empty", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, xerrors.Errorf("archive.Verify: open: %w", err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return 0, xerrors.Errorf("archive.Verify: gzip reader: %w", err)
	}
	defer gr.Close()
	tr := tar.NewReader(gr)
	for {
		_, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, xerrors.Errorf("archive.Verify: read entry %d: %w", entries, err)
		}
		entries++
	}
	return entries, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
