package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/threadline/threadline/internal/output"
	"github.com/threadline/threadline/internal/server/handlers"
)

var (
	extended    bool
	versionJSON bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. --extended adds the Go, gofulmen and crucible versions; --json prints the document served at /version.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(cmd.OutOrStdout(), handlers.CurrentVersion(), extended, versionJSON)
	},
}

func writeVersion(w io.Writer, v handlers.VersionResponse, extended, asJSON bool) error {
	if asJSON {
		data, err := output.MarshalJSON(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, data)
		return err
	}

	fmt.Fprintf(w, "%s %s\n", v.App.Name, v.App.Version)
	if !extended {
		return nil
	}
	fmt.Fprintf(w, "Commit: %s\nBuilt: %s\nGo: %s\nPlatform: %s\n\n", v.App.Commit, v.App.BuildDate, v.App.GoVersion, v.Runtime.Platform)
	fmt.Fprintf(w, "Gofulmen: %s\nCrucible: %s\n", v.Dependencies.Gofulmen, v.Dependencies.Crucible)
	return nil
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print version information as JSON")
}
