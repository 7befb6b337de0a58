// Command hag runs the autonomous HVAC controller, or queries/drives one
// that is already running via its local control API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = cobra.Command{
	Use:   "hag",
	Short: "autonomous HVAC controller",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.AddCommand(&startCmd, &statusCmd, &evaluateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
