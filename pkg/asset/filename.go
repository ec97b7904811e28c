package asset

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/buildkite/interpolate"
)

const (
	// DefaultBaseURL is the host serving release downloads
	DefaultBaseURL = "https://github.com"
	// DefaultRepo is the owner/name of the repository publishing the server builds
	DefaultRepo = "code-latest/vscode-server"
	// DefaultArch is the only architecture the release publishes
	DefaultArch = "x64"

	filenameTemplate = "vscode-server_${VERSION}_${ARCH}.tar.gz"
	urlTemplate      = "${BASE_URL}/${REPO}/releases/download/${VERSION}/${ASSET}"
)

// Filename returns the archive filename published for version.
// The version is used verbatim; a leading "v" is kept.
func Filename(version string) string {
	// The template has no defaults or required markers, so interpolation cannot fail.
	name, _ := interpolateTemplate(filenameTemplate, map[string]string{
		"VERSION": version,
		"ARCH":    DefaultArch,
	})
	return name
}

// DownloadURL builds the release download URL for version
func DownloadURL(baseURL, repo, version string) (string, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("download base URL is empty")
	}

	repo = strings.Trim(strings.TrimSpace(repo), "/")
	if owner, name, ok := strings.Cut(repo, "/"); !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid repository %q: expected owner/name", repo)
	}

	url, err := interpolateTemplate(urlTemplate, map[string]string{
		"BASE_URL": baseURL,
		"REPO":     repo,
		"VERSION":  version,
		"ASSET":    Filename(version),
	})
	if err != nil {
		return "", fmt.Errorf("failed to interpolate download URL: %w", err)
	}
	return url, nil
}

// TarballPath returns where the archive for version is stored while installing.
// The path depends only on tmpDir and version, so two runs for the same version share it.
// Path separators in version are replaced so the file always sits directly in tmpDir.
func TarballPath(tmpDir, version string) string {
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(Filename(version))
	return filepath.Join(tmpDir, name)
}

// interpolateTemplate performs variable substitution in a template string
func interpolateTemplate(template string, vars map[string]string) (string, error) {
	env := interpolate.NewMapEnv(vars)
	return interpolate.Interpolate(env, template)
}
