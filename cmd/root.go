package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/binary-install/vsci/pkg/asset"
	"github.com/binary-install/vsci/pkg/fetch"
	"github.com/binary-install/vsci/pkg/httpclient"
	"github.com/binary-install/vsci/pkg/installer"
	"github.com/spf13/cobra"
)

const (
	// EnvDebug enables debug logging when set to a true value
	EnvDebug = "VSCI_DEBUG"
	// EnvBaseURL overrides the release download host
	EnvBaseURL = "VSCI_BASE_URL"
	// EnvRepo overrides the owner/name of the release repository
	EnvRepo = "VSCI_REPO"
)

var (
	// Global flags
	verbose      bool
	quiet        bool
	baseURL      string
	repo         string
	reportFormat string
)

// newInstaller is replaced in tests
var newInstaller = func() *installer.Installer {
	inst := installer.New()
	if !quiet {
		inst.Downloader = &fetch.Downloader{
			Client:   httpclient.New(),
			Progress: newProgressPrinter(os.Stderr),
		}
	}
	return inst
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "vsci VERSION [INSTALL_DIR]",
	Short: "Install a VS Code server release and apply its pending patch",
	Long: `vsci downloads the VS Code server release archive for VERSION, extracts it into
INSTALL_DIR with the archive's top-level folder stripped, removes the downloaded archive and
runs INSTALL_DIR/code-latest --patch-now.

INSTALL_DIR defaults to $VSCI_INSTALL_DIR, then to ~/.vscode-server/code-latest.
Set VSCI_DEBUG=1 to trace every step.`,
	Example: `  # Install a release into the default directory
  vsci 1.95.0

  # Install into a custom directory
  vsci 1.95.0 /opt/vscode-server

  # Print a machine-readable report
  vsci 1.95.0 --report=yaml`,
	Args:         cobra.RangeArgs(1, 2),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetHandler(cli.Default)
		if verbose || debugFromEnv() {
			log.SetLevel(log.DebugLevel)
			log.Debugf("Verbose logging enabled")
		} else if quiet {
			log.SetLevel(log.ErrorLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}
	},
	RunE: runInstall,
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Increase log verbosity (also enabled by "+EnvDebug+")")
	RootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress progress output")
	RootCmd.Flags().StringVar(&baseURL, "base-url", asset.DefaultBaseURL, "Release download host (env "+EnvBaseURL+")")
	RootCmd.Flags().StringVar(&repo, "repo", asset.DefaultRepo, "Release repository as owner/name (env "+EnvRepo+")")
	RootCmd.Flags().StringVar(&reportFormat, "report", "text", "Success report format: text or yaml")
}

func runInstall(cmd *cobra.Command, args []string) error {
	version := args[0]
	installDir := ""
	if len(args) > 1 {
		installDir = args[1]
	}

	format, err := parseReportFormat(reportFormat)
	if err != nil {
		return err
	}

	opts := installer.Options{
		Version:    version,
		InstallDir: installDir,
		BaseURL:    flagOrEnv(cmd, "base-url", EnvBaseURL),
		Repo:       flagOrEnv(cmd, "repo", EnvRepo),
	}
	log.WithFields(log.Fields{
		"base_url": opts.BaseURL,
		"repo":     opts.Repo,
	}).Debug("resolved release source")

	res, err := newInstaller().Install(cmd.Context(), opts)
	if err != nil {
		log.WithField("kind", installer.KindOf(err).String()).Debug("install failed")
		return fmt.Errorf("failed to install %q: %w", version, err)
	}

	if res.CleanupWarning != "" {
		log.Warnf("Downloaded archive left at %s: %s", res.ArchivePath, res.CleanupWarning)
	}

	return writeReport(cmd.OutOrStdout(), format, res)
}

// flagOrEnv returns the flag value when set on the command line, else the
// environment variable when non-empty, else the flag default
func flagOrEnv(cmd *cobra.Command, name, env string) string {
	flag := cmd.Flags().Lookup(name)
	if flag.Changed {
		return flag.Value.String()
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	return flag.Value.String()
}

// debugFromEnv reports whether EnvDebug holds a true value.
// Any non-empty value that does not parse as a boolean counts as true.
func debugFromEnv() bool {
	v := strings.TrimSpace(os.Getenv(EnvDebug))
	if v == "" {
		return false
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return enabled
}
