package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/reina/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file to $HOME/.reina/reina.json
(or the path given with --config). Existing files are left untouched.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	existing, err := loader.Load()
	if err == nil && len(existing.Auth) > 0 {
		return fmt.Errorf("configuration already exists, edit it directly")
	}

	cfg := config.DefaultConfig()
	if err := loader.Save(cfg); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "wrote default configuration")
	fmt.Fprintln(cmd.OutOrStdout(), "add an auth profile before running the agent")
	return nil
}
