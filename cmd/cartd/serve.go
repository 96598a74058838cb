package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/Skotchmaster/cartsync/services/cart/app"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference cart service",
	Long: `Run the cart service under /api/panier with health and /metrics
endpoints. Configuration comes from the environment (SERVER_PORT,
DATABASE_URL, JWT_SECRET, KAFKA_BROKERS, SEED_PRODUCTS).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		envFiles, _ := cmd.Flags().GetStringSlice("env-file")
		_ = godotenv.Load(envFiles...)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx)
		if err != nil {
			return err
		}
		return a.Run(ctx)
	},
}
