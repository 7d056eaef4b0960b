package cmd

import (
	"fmt"
	"os"

	"github.com/SafeMPC/card-bridge/cmd/card"
	"github.com/SafeMPC/card-bridge/cmd/probe"
	"github.com/SafeMPC/card-bridge/cmd/server"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/SafeMPC/card-bridge/internal/util/command"
	"github.com/spf13/cobra"
)

// rootCmd 没有子命令时直接打印帮助
var rootCmd = &cobra.Command{
	Use:     "card-bridge",
	Short:   "Bridges dApp signing requests to an NFC signing card",
	Version: config.GetFormattedBuildArgs(),
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	},
}

// Execute 执行根命令，供 main.main() 调用
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.PersistentFlags().String(command.ConfigFlag, "", "Path to a YAML/TOML/JSON config file layered over the environment")

	rootCmd.AddCommand(
		server.New(),
		card.New(),
		probe.New(),
	)
}
