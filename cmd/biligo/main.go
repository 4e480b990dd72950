package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Wu-ChengLiang/BiliGo/internal/config"
	"github.com/Wu-ChengLiang/BiliGo/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "biligo",
		Short: "Bilibili private-message auto-reply bot",
	}
	cmd.PersistentFlags().String("config", defaultConfigPath(), "Path to the TOML config file")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func defaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return config.DefaultConfigPath
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("BiliGo %s\n", version.GetInfo())
		},
	}
}
