package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Options control how entries are written.
type Options struct {
	// Readable makes every extracted file and directory readable.
	Readable bool
	// Writable makes every extracted file and directory writable, subject to
	// the process umask.
	Writable bool
	// HardlinkAsFilesFallback copies the link source when a hard link
	// cannot be created.
	HardlinkAsFilesFallback bool
}

// DefaultOptions returns the options used for prebuild archives.
func DefaultOptions() Options {
	return Options{Readable: true, Writable: true, HardlinkAsFilesFallback: true}
}

// ExtractionError is a decompression or write failure.
type ExtractionError struct {
	Dir string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract prebuild into %s: %v", e.Dir, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor unpacks gzip-compressed tar streams.
type Extractor struct {
	Options Options

	link func(oldname, newname string) error
}

// NewExtractor creates an Extractor with DefaultOptions.
func NewExtractor() *Extractor {
	return &Extractor{Options: DefaultOptions()}
}

// Extract decompresses r and writes its entries below destDir, creating
// destDir if needed. Reading from r stops at the first failure, which is
// returned as an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, r io.Reader, destDir string) error {
	if err := e.extract(ctx, r, destDir); err != nil {
		return &ExtractionError{Dir: destDir, Err: err}
	}
	return nil
}

func (e *Extractor) extract(ctx context.Context, r io.Reader, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create destination directory")
	}
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return errors.Wrap(err, "failed to resolve destination directory")
	}

	gzReader, err := gzip.NewReader(&contextReader{ctx: ctx, r: r})
	if err != nil {
		return errors.Wrap(err, "failed to create gzip reader")
	}
	defer gzReader.Close()

	if err := e.extractTar(tar.NewReader(gzReader), root); err != nil {
		return err
	}

	// Consume the rest of the gzip stream so a corrupt trailer is reported.
	if _, err := io.Copy(io.Discard, gzReader); err != nil {
		return errors.Wrap(err, "failed to read gzip stream")
	}
	return nil
}

func (e *Extractor) extractTar(tarReader *tar.Reader, root string) error {
	var links []string
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "failed to read tar header")
		}

		name, err := safeJoin(root, header.Name)
		if err != nil {
			return err
		}
		// Earlier entries may have created symlinks along the path.
		target, err := resolveInRoot(root, name)
		if err != nil {
			return err
		}
		if target == root && header.Typeflag != tar.TypeDir {
			return fmt.Errorf("invalid path in archive: %s", header.Name)
		}
		log.WithField("entry", header.Name).Debug("extracting")

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, e.dirMode(header)); err != nil {
				return errors.Wrap(err, "failed to create directory")
			}
		case tar.TypeReg:
			if err := e.writeFile(target, tarReader, e.fileMode(header)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkSymlink(root, target, header.Linkname); err != nil {
				return err
			}
			if err := e.symlink(header.Linkname, target); err != nil {
				return err
			}
			if err := checkLinkResolution(root, target); err != nil {
				return err
			}
			links = append(links, target)
		case tar.TypeLink:
			joined, err := safeJoin(root, header.Linkname)
			if err != nil {
				return err
			}
			source, err := resolveInRoot(root, joined)
			if err != nil {
				return err
			}
			if err := e.hardlink(source, target); err != nil {
				return err
			}
		default:
			log.WithField("entry", header.Name).Debugf("skipping unsupported entry type %q", header.Typeflag)
		}
	}

	// A dangling link can start resolving once later entries exist.
	for _, link := range links {
		if err := checkLinkResolution(root, link); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}

	// Replace rather than write through an existing link.
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to replace existing file")
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to extract %s", filepath.Base(target))
	}
	return errors.Wrap(file.Close(), "failed to close file")
}

func (e *Extractor) symlink(linkname, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to replace existing file")
	}
	return errors.Wrapf(os.Symlink(linkname, target), "failed to create symlink %s", filepath.Base(target))
}

func (e *Extractor) hardlink(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to replace existing file")
	}

	link := e.link
	if link == nil {
		link = os.Link
	}
	linkErr := link(source, target)
	if linkErr == nil {
		return nil
	}
	if !e.Options.HardlinkAsFilesFallback {
		return errors.Wrapf(linkErr, "failed to create hard link %s", filepath.Base(target))
	}

	log.WithError(linkErr).WithField("entry", target).Debug("hard link failed, copying file")
	src, err := os.Open(source)
	if err != nil {
		return errors.Wrapf(err, "failed to copy hard link source for %s", filepath.Base(target))
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat hard link source")
	}
	return e.writeFile(target, src, info.Mode().Perm())
}

func (e *Extractor) fileMode(header *tar.Header) os.FileMode {
	mode := header.FileInfo().Mode().Perm()
	if e.Options.Readable {
		mode |= 0444
	}
	if e.Options.Writable {
		mode |= 0222
	}
	return mode
}

func (e *Extractor) dirMode(header *tar.Header) os.FileMode {
	mode := header.FileInfo().Mode().Perm()
	if e.Options.Readable {
		mode |= 0555
	}
	if e.Options.Writable {
		mode |= 0333
	}
	return mode
}

// safeJoin joins name to destDir and rejects names that leave destDir.
func safeJoin(destDir, name string) (string, error) {
	root := filepath.Clean(destDir)
	target := filepath.Join(root, name)
	if !within(root, target) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return target, nil
}

// checkSymlink rejects absolute links and links whose text points outside
// root.
func checkSymlink(root, target, linkname string) error {
	if filepath.IsAbs(linkname) || !within(root, filepath.Join(filepath.Dir(target), linkname)) {
		return fmt.Errorf("invalid symlink in archive: %s -> %s", filepath.Base(target), linkname)
	}
	return nil
}

// checkLinkResolution rejects a link that resolves on disk to a location
// outside root. Dangling links pass.
func checkLinkResolution(root, link string) error {
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		return nil
	}
	if !within(root, resolved) {
		return fmt.Errorf("invalid symlink in archive: %s resolves outside the destination", filepath.Base(link))
	}
	return nil
}

// resolveInRoot resolves the symlinks in the parent directories of name and
// returns the path the entry will be written to. name must be clean and
// below root; the part of its parent that does not exist yet is kept as is.
func resolveInRoot(root, name string) (string, error) {
	if name == root {
		return root, nil
	}
	dir := filepath.Dir(name)
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			real := filepath.Join(append([]string{resolved}, missing...)...)
			if !within(root, real) {
				rel, _ := filepath.Rel(root, name)
				return "", fmt.Errorf("invalid path in archive: %s leaves the destination through a symlink", rel)
			}
			return filepath.Join(real, filepath.Base(name)), nil
		}
		if !os.IsNotExist(err) {
			return "", errors.Wrap(err, "failed to resolve entry path")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.Wrap(err, "failed to resolve entry path")
		}
		missing = append([]string{filepath.Base(dir)}, missing...)
		dir = parent
	}
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}

// contextReader stops the pipeline once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
