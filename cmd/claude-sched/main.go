package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "claude-sched",
		Short: "Claude task scheduler - automated task processing",
		Long: `claude-sched manages a queue of development tasks executed by the
Claude CLI. Tasks live in a YAML file, each run gets an isolated
workspace, and processing respects the account's token limits.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
