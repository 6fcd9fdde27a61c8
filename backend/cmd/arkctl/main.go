package main

import (
	"context"
	"fmt"
	"os"

	"noahs-ark/backend/internal/app"
	"noahs-ark/backend/pkg/config"
	"noahs-ark/backend/pkg/logger"
)

func main() {
	root := newRootCmd(func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
			return nil, err
		}
		return app.New(ctx, cfg)
	})
	err := root.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
