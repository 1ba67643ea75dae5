// Command flowerbot runs the flower shop Telegram bot.
package main

import (
	"context"
	"log"

	corecmd "github.com/m3rciful/flowerbot/core/cmd"
	"github.com/m3rciful/flowerbot/internal/app"
	"github.com/m3rciful/flowerbot/internal/config"
)

func main() {
	err := corecmd.Run(corecmd.Options[*config.Config]{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        config.Load,
		Bootstrap: func(ctx context.Context, cfg *config.Config) (corecmd.TelegramApp, error) {
			return app.Bootstrap(ctx, cfg)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
