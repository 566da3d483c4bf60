package main

import (
	"context"
	"log"
	"time"

	"wgprov/config"
	"wgprov/server"
)

func main() {
	cfg := config.MustLoad()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	app := &server.App{}
	if err := app.Initialize(ctx, cfg); err != nil {
		cancel()
		log.Fatal(err)
	}
	cancel()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
