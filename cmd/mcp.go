package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/mcpserver"
)

// version is set at build time with -ldflags.
var version = "dev"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve curator tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCurator(ctx, "mcp")
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("starting mcp server on stdio")
		return mcpserver.ServeStdio(ctx, mcpserver.New(env.Service, version), os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
