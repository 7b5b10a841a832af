package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suutaku/winshot/internal/browser"
	"github.com/suutaku/winshot/internal/config"
	"github.com/suutaku/winshot/internal/logging"
	"github.com/suutaku/winshot/pkg/screenshot"
)

var (
	// Global flags
	configPath string
	backend    string
	logLevel   string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "capture",
	Short:         "Take best-effort screenshots of the active window",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("backend") {
			cfg.Backend = backend
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Logging.Level = logLevel
		}
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.Debug("configuration loaded", zap.String("source", cfg.Source), zap.String("backend", cfg.Backend))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "capture backend: auto, x11, windows, generic, browser")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(shotCmd, displaysCmd, variableCmd, versionCmd)
}

func openHost(ctx context.Context) (screenshot.Host, error) {
	return screenshot.OpenHost(ctx, screenshot.HostConfig{
		Backend: cfg.Backend,
		Browser: browser.Options{
			DebuggerURL: cfg.Browser.DebuggerURL,
			Bin:         cfg.Browser.Bin,
			Headless:    cfg.Browser.Headless,
		},
	}, logger)
}

func newCapturer(host screenshot.Host) *screenshot.Capturer {
	c := cfg.Capture
	return screenshot.New(host,
		screenshot.WithLogger(logger),
		screenshot.WithQuality(c.Quality),
		screenshot.WithCrop(c.CropToWindow),
		screenshot.WithReadyTimeout(c.ReadyTimeout),
		screenshot.WithFrameInterval(c.FrameInterval),
		screenshot.WithBufferedFrames(c.BufferedFrames),
		screenshot.WithMaxBitmapBytes(c.MaxBitmapBytes),
	)
}

// captureOptions hints the capture toward windowID when --window was given.
// Zero is a valid id on hosts that number displays from 0.
func captureOptions(set bool, windowID uint64) []screenshot.CaptureOption {
	if !set {
		return nil
	}
	return []screenshot.CaptureOption{screenshot.WithTargetWindow(windowID)}
}
