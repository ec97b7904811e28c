package installer

import (
	"context"
	"os"

	"github.com/apex/log"
	"github.com/binary-install/vsci/pkg/archive"
	"github.com/binary-install/vsci/pkg/asset"
	"github.com/binary-install/vsci/pkg/fetch"
	"github.com/binary-install/vsci/pkg/install"
	"github.com/binary-install/vsci/pkg/patch"
	"github.com/pkg/errors"
)

const (
	// ExecutableName is the binary inside the release that applies patches
	ExecutableName = "code-latest"
	// StripComponents drops the archive's single top-level folder
	StripComponents = 1
)

// Downloader fetches url into destPath
type Downloader interface {
	Fetch(ctx context.Context, url, destPath string) (int64, error)
}

// ExtractFunc extracts an archive into destDir, see archive.Extract
type ExtractFunc func(archivePath, destDir string, stripComponents int) (int, error)

// Options describes one install
type Options struct {
	// Version is interpolated into the download URL as is. Required.
	Version string
	// InstallDir defaults to install.ResolveInstallDir("")
	InstallDir string
	// BaseURL defaults to asset.DefaultBaseURL
	BaseURL string
	// Repo defaults to asset.DefaultRepo
	Repo string
}

// Result describes a successful install
type Result struct {
	Version     string `yaml:"version"`
	URL         string `yaml:"url"`
	InstallDir  string `yaml:"install_dir"`
	ArchivePath string `yaml:"archive_path"`
	Bytes       int64  `yaml:"bytes"`
	Entries     int    `yaml:"entries"`
	Executable  string `yaml:"executable"`
	// CleanupWarning is set when the downloaded archive could not be removed
	CleanupWarning string `yaml:"cleanup_warning,omitempty"`
}

// Installer downloads, extracts and patches a server release
type Installer struct {
	Downloader Downloader
	Extract    ExtractFunc
	Runner     patch.Runner
	// TempDir holds the downloaded archive. Defaults to os.TempDir().
	TempDir string
}

// New returns an Installer wired to the network, the filesystem and os/exec
func New() *Installer {
	return &Installer{
		Downloader: fetch.New(),
		Extract:    archive.Extract,
		Runner:     patch.NewExecRunner(),
	}
}

// Install runs every step in order and stops at the first fatal error.
// The downloaded archive is removed on every return path; failing to remove it
// is only a warning.
func (i *Installer) Install(ctx context.Context, opts Options) (*Result, error) {
	if opts.Version == "" {
		return nil, fail(KindUsage, "validate", errors.New("version is required"))
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = asset.DefaultBaseURL
	}
	repo := opts.Repo
	if repo == "" {
		repo = asset.DefaultRepo
	}

	url, err := asset.DownloadURL(baseURL, repo, opts.Version)
	if err != nil {
		return nil, fail(KindUsage, "build download URL", err)
	}

	installDir, err := install.ResolveInstallDir(opts.InstallDir)
	if err != nil {
		return nil, fail(KindUsage, "resolve install directory", err)
	}

	tmpDir := i.TempDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}

	res := &Result{
		Version:     opts.Version,
		URL:         url,
		InstallDir:  installDir,
		ArchivePath: asset.TarballPath(tmpDir, opts.Version),
	}
	logger := log.WithField("version", opts.Version)

	removed := false
	removeArchive := func() error {
		if removed {
			return nil
		}
		removed = true
		if err := os.Remove(res.ArchivePath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	defer func() {
		if err := removeArchive(); err != nil {
			logger.WithError(err).Warn("could not remove downloaded archive")
		}
	}()

	logger.WithField("url", url).Info("downloading")
	res.Bytes, err = i.Downloader.Fetch(ctx, url, res.ArchivePath)
	if err != nil {
		return nil, fail(KindDownload, "download", err)
	}

	if err := install.EnsureDir(installDir); err != nil {
		return nil, fail(KindFilesystem, "create install directory", err)
	}

	logger.WithField("dir", installDir).Info("extracting")
	res.Entries, err = i.Extract(res.ArchivePath, installDir, StripComponents)
	if err != nil {
		return nil, fail(KindFilesystem, "extract", err)
	}

	if err := removeArchive(); err != nil {
		logger.WithError(err).Warn("could not remove downloaded archive")
		res.CleanupWarning = err.Error()
	}

	res.Executable, err = install.LocateExecutable(installDir, ExecutableName)
	if err != nil {
		return nil, fail(KindMissingBinary, "locate "+ExecutableName, err)
	}

	logger.WithField("executable", res.Executable).Info("applying patch")
	if err := patch.Invoke(ctx, i.Runner, res.Executable); err != nil {
		return nil, fail(KindPatch, "patch", err)
	}

	return res, nil
}
