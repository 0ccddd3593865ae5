// ABOUTME: Cobra root command wiring config, logging, the app and the TUI
// ABOUTME: Headless mode blocks on signals instead of running the TUI
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZoneSync-Audio/zonesync-go/internal/app"
	"github.com/ZoneSync-Audio/zonesync-go/internal/config"
	"github.com/ZoneSync-Audio/zonesync-go/internal/logger"
	"github.com/ZoneSync-Audio/zonesync-go/internal/protocol"
	"github.com/ZoneSync-Audio/zonesync-go/internal/ui"
	"github.com/ZoneSync-Audio/zonesync-go/internal/version"
)

var (
	flagProfile  string
	flagNoTUI    bool
	flagLogLevel string
	flagLogFile  string
)

var rootCmd = &cobra.Command{
	Use:     "zonesync",
	Short:   "ZoneSync keeps multi-device audio playback in step with the server.",
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagProfile, "profile", "", "path to the TOML profile")
	rootCmd.Flags().BoolVar(&flagNoTUI, "no-tui", false, "run headless without the TUI")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "override log level")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "", "override log file path")
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// profileOutputs serves the profile's configured outputs
type profileOutputs struct {
	outputs []config.Output
}

func (p profileOutputs) Outputs(ctx context.Context) ([]protocol.OutputDevice, error) {
	devices := make([]protocol.OutputDevice, 0, len(p.outputs))
	for _, o := range p.outputs {
		kind := o.Kind
		if kind == "" {
			kind = protocol.BackendLocal
		}
		devices = append(devices, protocol.OutputDevice{ID: o.ID, Name: o.Name, Kind: kind})
	}
	return devices, nil
}

func run() error {
	cfg, err := config.Load(flagProfile)
	if err != nil {
		return err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFile != "" {
		cfg.LogFile = flagLogFile
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting",
		zap.String("product", version.Product),
		zap.String("version", version.Version))

	bridge := ui.NewBridge()
	a := app.New(app.Options{
		Logger:   log,
		Observer: bridge,
		Outputs:  profileOutputs{outputs: cfg.Outputs},
	})
	defer a.Shutdown()

	if err := a.SetState(app.State{
		ConnectionID:   cfg.ConnectionID,
		ConnectionName: cfg.ConnectionName,
		APIURL:         cfg.APIURL,
		ClientID:       cfg.ClientID,
		SignatureToken: cfg.SignatureToken,
		APIToken:       cfg.APIToken,
	}); err != nil {
		return err
	}

	if flagNoTUI {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		return nil
	}

	program, err := ui.Run(a)
	if err != nil {
		return fmt.Errorf("start ui: %w", err)
	}
	bridge.Attach(program)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
