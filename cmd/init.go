package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/auditpipe/mail-audit/config"
)

var initOut string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented example configuration to get started",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(initOut); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite", initOut)
		}
		if err := config.WriteExample(initOut); err != nil {
			return err
		}
		cmd.Printf("wrote %s\n", initOut)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initOut, "out", "config.toml", "Where to write the example configuration")
}
