package install

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// EnvInstallDir overrides the default install directory
const EnvInstallDir = "VSCI_INSTALL_DIR"

var (
	// ErrNotFound is returned when the executable does not exist
	ErrNotFound = errors.New("executable not found")
	// ErrNotExecutable is returned when the file exists but cannot be executed
	ErrNotExecutable = errors.New("file is not executable")
)

// DefaultInstallDir returns the install directory used when none is given
func DefaultInstallDir() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("could not determine install directory: no HOME environment variable")
	}
	return filepath.Join(home, ".vscode-server", "code-latest"), nil
}

// ResolveInstallDir resolves the installation directory, handling defaults and expansions
func ResolveInstallDir(dir string) (string, error) {
	if dir == "" {
		if envDir := os.Getenv(EnvInstallDir); envDir != "" {
			dir = envDir
		} else {
			def, err := DefaultInstallDir()
			if err != nil {
				return "", err
			}
			dir = def
		}
	}

	// Expand path (handles ~ and environment variables)
	dir = expandPath(dir)

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve install directory")
	}

	return absPath, nil
}

// EnsureDir creates dir and its parents. An existing directory is not an error.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create install directory %s", dir)
	}
	return nil
}

// LocateExecutable returns the path of name inside dir if it is an executable regular file
func LocateExecutable(dir, name string) (string, error) {
	if runtime.GOOS == "windows" && !strings.HasSuffix(name, ".exe") {
		name += ".exe"
	}
	path := filepath.Join(dir, name)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", errors.Wrap(ErrNotFound, path)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat %s", path)
	}

	if !info.Mode().IsRegular() {
		return "", errors.Wrap(ErrNotExecutable, path)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0111 == 0 {
		return "", errors.Wrap(ErrNotExecutable, path)
	}

	return path, nil
}

// expandPath expands ~ and environment variables in a path
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}

	return os.ExpandEnv(path)
}
