// Package cli implements the legacyvault command line.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/legacyvault/internal/app"
	"github.com/lcrostarosa/legacyvault/internal/cli/runner"
	"github.com/lcrostarosa/legacyvault/internal/config"
	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

// rootState is what the persistent flags and config loading produce.
type rootState struct {
	cfgFile  string
	logLevel string
	remote   runner.Remote

	cfg    *config.Config
	cfgErr error
}

func (s *rootState) config() (*config.Config, error) {
	return s.cfg, s.cfgErr
}

func (s *rootState) load() {
	s.cfg, s.cfgErr = config.Load(s.cfgFile)
}

func (s *rootState) initLogging() error {
	if s.cfg == nil {
		logging.InitDefault()
		return nil
	}
	lc := s.cfg.Logging()
	if s.logLevel != "" {
		lc.Level = s.logLevel
	}
	return logging.Init(lc)
}

// NewRootCommand builds the command tree. opts are passed to app.New for
// commands that run against the local store.
func NewRootCommand(opts ...app.Option) *cobra.Command {
	st := &rootState{}

	root := &cobra.Command{
		Use:   "legacyvault",
		Short: "Dead man's switch for digital legacies",
		Long: `LegacyVault watches for owner inactivity. An owner who stops checking in
receives warnings; if the silence continues past the inactivity period the
switch triggers and the nominee receives a time-limited access link.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			st.load()
			return st.initLogging()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&st.cfgFile, "config", "", "Config file (default ~/.legacyvault/config.yaml)")
	pf.StringVar(&st.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	pf.StringVar(&st.remote.URL, "remote", os.Getenv("LEGACYVAULT_REMOTE"), "Base URL of a running server; commands go over the API instead of the local store")
	pf.StringVar(&st.remote.APIKey, "api-key", os.Getenv("LEGACYVAULT_API_KEY"), "API key for --remote")
	pf.Bool("json", false, "Print results as JSON")

	b := runner.NewBuilder(st.config, func() runner.Remote { return st.remote }, opts...)
	root.AddCommand(
		newInitCmd(st, b),
		newServeCmd(b),
		newScanCmd(b),
		newConfigureCmd(b),
		newActivateCmd(b, true),
		newActivateCmd(b, false),
		newCheckInCmd(b),
		newStatusCmd(b),
		newTestNotifyCmd(b),
		newHistoryCmd(b),
		newAccessCmd(b),
		newOwnerCmd(b),
	)
	return root
}

// Execute runs the CLI
func Execute() {
	root := NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		root.PrintErrln("Error:", err)
		_ = logging.Sync()
		os.Exit(1)
	}
	_ = logging.Sync()
}
