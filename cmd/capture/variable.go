package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/suutaku/winshot/pkg/screenshot"
)

var (
	variableLang   string
	variableWindow uint64
)

var variableCmd = &cobra.Command{
	Use:   "variable",
	Short: "Print the screenshot as a chat attachment entry (JSON)",
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, err := language.Parse(variableLang)
		if err != nil {
			return fmt.Errorf("invalid --lang: %w", err)
		}
		host, err := openHost(cmd.Context())
		if err != nil {
			return err
		}
		defer host.Close()

		entry, ok := screenshot.GetScreenshotAsVariable(cmd.Context(), newCapturer(host), lang, captureOptions(cmd.Flags().Changed("window"), variableWindow)...)
		if !ok {
			return errNotAvailable
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	},
}

func init() {
	variableCmd.Flags().StringVar(&variableLang, "lang", "en", "language of the attachment label (BCP 47)")
	variableCmd.Flags().Uint64Var(&variableWindow, "window", 0, "prefer this window id when picking the capture source")
}
