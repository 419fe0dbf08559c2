package cmd

import (
	"github.com/carousell/ct-go/pkg/logger/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chathub-io/chathub/internal/app"
	"github.com/chathub-io/chathub/internal/ingest"
	"github.com/chathub-io/chathub/internal/reward"
	"github.com/chathub-io/chathub/internal/server"
)

var rootCmd = &cobra.Command{
	Use:           "chathub",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		app.Invoke(
			server.StartServer,
			ingest.StartConsumer,
			reward.StartRefresher,
		).Run()
	},
}

func Execute() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
