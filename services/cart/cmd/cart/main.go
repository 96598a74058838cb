package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Skotchmaster/cartsync/services/cart/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		log.Fatalf("cart service init: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		log.Fatalf("cart service: %v", err)
	}
}
