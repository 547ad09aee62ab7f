package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go-identity-service/internal/di"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runner, err := di.InitializeMigrationRunner()
		if err != nil {
			log.Fatal(err)
		}
		if err := runner.Run(); err != nil {
			log.Fatal(err)
		}
		return
	}

	a, err := di.InitializeApp()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
