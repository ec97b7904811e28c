package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// Format represents the archive format
type Format string

const (
	FormatTarGz   Format = "tar.gz"
	FormatTarXz   Format = "tar.xz"
	FormatTar     Format = "tar"
	FormatUnknown Format = ""
)

// DetectFormat detects the archive format based on the filename
func DetectFormat(filename string) Format {
	lower := strings.ToLower(filename)

	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar
	}
	return FormatUnknown
}

// Extract extracts an archive into destDir, dropping the first stripComponentsCount
// segments of every entry name. It returns the number of entries written.
func Extract(archivePath, destDir string, stripComponentsCount int) (int, error) {
	format := DetectFormat(archivePath)
	if format == FormatUnknown {
		return 0, fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return 0, errors.Wrap(err, "failed to open archive")
	}
	defer file.Close()

	var r io.Reader = file
	switch format {
	case FormatTarGz:
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return 0, errors.Wrap(err, "failed to create gzip reader")
		}
		defer gzReader.Close()
		r = gzReader
	case FormatTarXz:
		xzReader, err := xz.NewReader(file)
		if err != nil {
			return 0, errors.Wrap(err, "failed to create xz reader")
		}
		r = xzReader
	}

	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return 0, errors.Wrap(err, "failed to resolve destination directory")
	}
	return extractTarReader(r, absDest, stripComponentsCount)
}

// extractTarReader extracts from a tar stream
func extractTarReader(r io.Reader, destDir string, stripComponentsCount int) (int, error) {
	tarReader := tar.NewReader(r)
	count := 0

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, errors.Wrap(err, "failed to read tar header")
		}

		if unsafeName(header.Name) {
			return count, fmt.Errorf("invalid path in archive: %s", header.Name)
		}

		// Apply strip components
		name, skip := stripComponents(header.Name, stripComponentsCount)
		if skip {
			continue
		}

		target := filepath.Join(destDir, filepath.FromSlash(name))
		if err := ensureWithinRoot(destDir, target); err != nil {
			return count, errors.Wrapf(err, "invalid path in archive: %s", header.Name)
		}
		if err := ensureNoSymlinkParents(destDir, target); err != nil {
			return count, errors.Wrapf(err, "invalid path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(header)); err != nil {
				return count, errors.Wrap(err, "failed to create directory")
			}
		case tar.TypeReg:
			if err := writeFile(target, tarReader, header.FileInfo().Mode().Perm()); err != nil {
				return count, err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(destDir, target, header.Linkname); err != nil {
				return count, err
			}
		default:
			log.WithFields(log.Fields{
				"entry": header.Name,
				"type":  string(header.Typeflag),
			}).Debug("skipping unsupported archive entry")
			continue
		}
		count++
	}

	return count, nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}

	// Unlink first: a running executable cannot be truncated in place
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to replace existing file")
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return errors.Wrap(err, "failed to extract file")
	}

	if err := file.Close(); err != nil {
		return errors.Wrap(err, "failed to close extracted file")
	}

	// OpenFile applies the umask; restore the archived bits
	return errors.Wrap(os.Chmod(target, mode), "failed to set file mode")
}

func writeSymlink(destDir, target, linkname string) error {
	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(target), linkname)
	}
	if err := ensureWithinRoot(destDir, resolved); err != nil {
		return errors.Wrapf(err, "symlink %s points outside the install directory", target)
	}
	if through := linkThroughSymlink(destDir, filepath.Dir(target), linkname); through != "" {
		return fmt.Errorf("symlink %s resolves through symlink %s", target, through)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to replace existing file")
	}
	return errors.Wrap(os.Symlink(linkname, target), "failed to create symlink")
}

func dirMode(header *tar.Header) os.FileMode {
	mode := header.FileInfo().Mode().Perm()
	// The directory must stay writable and traversable for its own entries
	return mode | 0700
}

// stripComponents removes the specified number of leading path components
func stripComponents(name string, count int) (string, bool) {
	name = path.Clean(name)
	if name == "." {
		return "", true
	}
	if count == 0 {
		return name, false
	}

	parts := strings.Split(name, "/")
	if len(parts) <= count {
		// Skip this entry entirely
		return "", true
	}

	return strings.Join(parts[count:], "/"), false
}

// unsafeName reports absolute names and names with a ".." segment
func unsafeName(name string) bool {
	if path.IsAbs(name) || filepath.IsAbs(name) {
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// ensureWithinRoot rejects targets outside root
func ensureWithinRoot(root, target string) error {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if target == root {
		return nil
	}
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("%s escapes %s", target, root)
	}
	return nil
}

// ensureNoSymlinkParents rejects targets whose parent directories below root
// include a symlink, since writing through it can land outside root
func ensureNoSymlinkParents(root, target string) error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}

	current := root
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to inspect parent directory")
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%s is below symlink %s", target, current)
		}
	}
	return nil
}

// linkThroughSymlink walks linkname from dir and returns the first intermediate
// component inside root that is already a symlink, or "" if there is none
func linkThroughSymlink(root, dir, linkname string) string {
	current := dir
	if filepath.IsAbs(linkname) {
		current = string(os.PathSeparator)
	}

	parts := strings.Split(filepath.ToSlash(linkname), "/")
	for i, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			current = filepath.Dir(current)
			continue
		}
		current = filepath.Join(current, part)
		if i == len(parts)-1 {
			break
		}
		if current == filepath.Clean(root) || ensureWithinRoot(root, current) != nil {
			continue
		}
		if info, err := os.Lstat(current); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return current
		}
	}
	return ""
}
