// Command wikora is a locally operated wiki: versioned Markdown pages,
// attached assets and users behind a REST API, stored in one embedded
// database.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wikora/wikora/internal/assetfs"
	"github.com/wikora/wikora/internal/config"
	"github.com/wikora/wikora/internal/ftindex"
	"github.com/wikora/wikora/internal/metrics"
	"github.com/wikora/wikora/internal/service"
	"github.com/wikora/wikora/internal/store"
	"github.com/wikora/wikora/internal/types"
	"github.com/wikora/wikora/internal/wikipath"
)

var (
	configPath string
	dataDir    string
	logLevel   string

	cfg *config.Config
	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:           "wikora",
	Short:         "A locally operated Markdown wiki",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.Global.DataDir = dataDir
		}
		if logLevel != "" {
			cfg.Global.LogLevel = logLevel
		}
		level, err := logrus.ParseLevel(cfg.Global.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", cfg.Global.LogLevel)
		}
		log.SetLevel(level)
		log.SetOutput(os.Stderr)
		if cfg.Global.LogJSON {
			log.SetFormatter(&logrus.JSONFormatter{})
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (TOML)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory override")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override")

	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server:"},
		&cobra.Group{ID: "content", Title: "Pages & Assets:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	rootCmd.AddCommand(
		runCmd,
		pageCmd,
		assetCmd,
		userCmd,
		lockCmd,
		ftsCmd,
		commandsCmd,
		helpAllCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", types.Reason(err))
		if types.KindOf(err) == types.KindInternal {
			log.WithError(err).Debug("command failed")
		}
		os.Exit(1)
	}
}

// openService wires the three stores. Direct (serverless) commands pass a
// nil metrics set. The caller must invoke the returned cleanup.
func openService(m *metrics.Metrics) (*service.Service, func(), error) {
	if err := os.MkdirAll(cfg.Global.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.Open(cfg.DBPath(), store.Options{
		LockTTL: cfg.Run.LockTTL,
		Log:     log,
	})
	if err != nil {
		return nil, nil, err
	}
	fs, err := assetfs.New(cfg.AssetRoot(), log)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	idx, err := ftindex.Open(cfg.IndexDir(), log)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	svc := service.New(st, fs, idx, service.Options{
		TemplatePrefix: cfg.Run.TemplatePrefix,
		MaxAssetSize:   cfg.Asset.MaxSize,
		Metrics:        m,
		Log:            log,
	})
	cleanup := func() {
		_ = idx.Close()
		_ = st.Close()
	}
	return svc, cleanup, nil
}

// resolveRef turns a path or page id argument into a page id.
func resolveRef(svc *service.Service, ref string) (string, error) {
	if strings.HasPrefix(ref, "/") {
		return svc.Store().Resolve(ref)
	}
	if _, err := svc.Store().Meta(ref); err != nil {
		return "", err
	}
	return ref, nil
}

// mustNormalize validates a path argument up front for friendlier CLI
// errors.
func mustNormalize(p string) (string, error) {
	return wikipath.Normalize(p)
}
