package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skobkin/courier/internal/app"
)

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n%s\n", app.Name, app.BuildVersionWithDate(), app.SourceURL)
			if !check {
				return nil
			}

			res, err := app.CheckRelease(cmd.Context(), nil, "")
			if err != nil {
				return err
			}
			if res.UpdateAvailable {
				fmt.Fprintf(out, "update available: %s %s\n", res.Latest.Version, res.Latest.HTMLURL)
			} else {
				fmt.Fprintln(out, "up to date")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check for a newer release")

	return cmd
}
