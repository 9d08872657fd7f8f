package main

import (
	"os"

	_ "embed"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/scorelab/scorefold/internal/app"
	"github.com/scorelab/scorefold/internal/config"
	"github.com/scorelab/scorefold/internal/support/logger"
)

// embeddedConfig embeds the service configuration. Deployments override
// individual values through environment variables.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	cfg, err := config.LoadConfig(envFilePath, embeddedConfig)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	application := app.New(cfg)
	// Run blocks until SIGINT/SIGTERM, then executes the fx shutdown hooks.
	application.Run()

	if err := application.Err(); err != nil {
		logger.Fatalf("Application run failed: %v", err)
	}
}
