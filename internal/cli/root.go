// Package cli implements the hum2song command tree. Commands return
// errors; Execute maps them onto the documented exit codes so scripts
// can tell a failed task from a flaky network from a typo.
package cli

import (
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zzn199216/hum2song-webui/internal/client"
)

// Exit codes of the hum2song binary.
const (
	ExitOK          = 0
	ExitTaskFailed  = 2
	ExitPollTimeout = 3
	ExitTransport   = 4
	ExitBadArgs     = 5
)

// defaultBaseURL is the local development server.
const defaultBaseURL = "http://127.0.0.1:8000"

var (
	logger  = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hum2song",
	Short: "Hum2Song CLI - turn hummed melodies into instrumental tracks",
	Long: `Hum2Song CLI submits humming recordings to a hum2song server,
polls the conversion, downloads the rendered audio and MIDI, and edits
the symbolic score locally or against the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(log.DebugLevel)
		}
		setupColor()
	},
}

// codedError pins an explicit exit code onto an error.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// taskFailed marks a task that finished in the failed state.
func taskFailed(err error) error {
	return &codedError{code: ExitTaskFailed, err: err}
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}
	printError("%s", err)
	return exitCodeFor(err)
}

// exitCodeFor classifies an error into an exit code. Client transport
// and contract errors are 4, poll timeouts 3, failed tasks 2;
// everything else (flag parsing, unreadable files, bad values) is
// treated as caller error.
func exitCodeFor(err error) int {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}

	var pollTimeout *client.PollTimeoutError
	if errors.As(err, &pollTimeout) {
		return ExitPollTimeout
	}

	var netErr *client.NetworkError
	var httpErr *client.HTTPError
	var contractErr *client.ContractError
	if errors.As(err, &netErr) || errors.As(err, &httpErr) || errors.As(err, &contractErr) {
		return ExitTransport
	}

	return ExitBadArgs
}

// newClient builds the API client from the resolved base URL.
func newClient() *client.Client {
	baseURL := viper.GetString("base-url")
	logger.Debug("Using server", "base_url", baseURL)
	return client.New(baseURL, 0)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	rootCmd.PersistentFlags().String("base-url", defaultBaseURL, "Hum2song server base URL")

	// Flags can also come from H2S_* environment variables
	// (H2S_BASE_URL, H2S_SOUNDFONT, ...).
	viper.SetEnvPrefix("H2S")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(synthCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(versionCmd)
}
