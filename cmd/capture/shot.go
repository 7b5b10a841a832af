package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	shotOutput string
	shotWindow uint64
	shotCrop   bool
)

// errNotAvailable is returned when no screenshot could be taken; the reason
// has already been logged.
var errNotAvailable = errors.New("screenshot not available")

var shotCmd = &cobra.Command{
	Use:   "shot",
	Short: "Capture the active window to a JPEG file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("crop") {
			cfg.Capture.CropToWindow = shotCrop
		}
		host, err := openHost(cmd.Context())
		if err != nil {
			return err
		}
		defer host.Close()

		shot, ok := newCapturer(host).Capture(cmd.Context(), captureOptions(cmd.Flags().Changed("window"), shotWindow)...)
		if !ok {
			return errNotAvailable
		}

		out := shotOutput
		if out == "" {
			out = fmt.Sprintf("screenshot-%s.jpg", shot.CapturedAt.Format("20060102-150405"))
		}
		if err := os.WriteFile(out, shot.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		logger.Info("screenshot saved",
			zap.String("path", out),
			zap.Int("width", shot.Width),
			zap.Int("height", shot.Height),
			zap.Int("bytes", len(shot.Data)),
			zap.String("taken", shot.CapturedAt.Format(time.RFC3339)))
		return nil
	},
}

func init() {
	shotCmd.Flags().StringVarP(&shotOutput, "output", "o", "", "output file (default screenshot-<time>.jpg)")
	shotCmd.Flags().Uint64Var(&shotWindow, "window", 0, "prefer this window id when picking the capture source")
	shotCmd.Flags().BoolVar(&shotCrop, "crop", false, "crop the frame to the active window")
}
