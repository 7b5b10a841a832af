package main

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/suutaku/winshot/pkg/media"
)

var displaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "List the displays the backend can capture",
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := openHost(cmd.Context())
		if err != nil {
			return err
		}
		defer host.Close()

		lister, ok := host.(media.DisplayLister)
		if !ok {
			return errors.New("backend cannot enumerate displays")
		}
		displays, err := lister.Displays(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderDisplays(displays))
		return nil
	},
}

func renderDisplays(displays []media.Display) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Name", "Origin", "Size", "Primary"})
	for _, d := range displays {
		primary := ""
		if d.Primary {
			primary = "yes"
		}
		t.AppendRow(table.Row{
			d.Index,
			d.Name,
			fmt.Sprintf("%d,%d", d.Bounds.Min.X, d.Bounds.Min.Y),
			fmt.Sprintf("%dx%d", d.Bounds.Dx(), d.Bounds.Dy()),
			primary,
		})
	}
	return t.Render()
}
