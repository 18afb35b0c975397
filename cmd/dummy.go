package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"benchq/internal/dummy"
)

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Start a local target server with fast, slow, flaky and heavy endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		slowdown, _ := cmd.Flags().GetFloat64("slowdown")

		log, logFile, err := newLogger(false)
		if err != nil {
			return err
		}
		defer logFile.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("🚀 Dummy server on :%d (endpoints: %v)\n", port, dummy.Endpoints)
		return dummy.Serve(ctx, dummy.ServerConfig{Port: port, Slowdown: slowdown}, log)
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8000, "listen port")
	dummyCmd.Flags().Float64("slowdown", 1, "multiply every artificial delay")
}
