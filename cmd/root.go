// Package cmd implements tx2tx's Cobra-based CLI, following the teacher's
// cmd/root.go shape: one *cobra.Command per subcommand, flags bound into
// Viper, RunE returning errors instead of calling os.Exit directly.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is assigned by main.go from its version constant before Execute
// runs.
var Version = "0.1.0-dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tx2tx",
	Short: "tx2tx - server-authoritative software KVM",
	Long: `tx2tx forwards pointer and keyboard input from one machine to others
over the network, switching which machine receives input based on which
screen edge the cursor crosses.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
