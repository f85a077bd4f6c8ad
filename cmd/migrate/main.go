// Command migrate applies or reverts the embedded tenant-authz schema against DATABASE_URL.
//
//	migrate -direction up            apply every pending migration
//	migrate -direction down -steps 1 revert the newest migration
package main

import (
	"errors"
	"flag"
	"log"

	"tenant-authz/internal/config"
	"tenant-authz/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 0, "migrations to apply or revert; 0 means all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("migrate: load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("migrate: DATABASE_URL is required")
	}

	err = migrate.Run(cfg.DatabaseURL, *direction, *steps)
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Printf("migrate: schema already at target (%s)", *direction)
	case err != nil:
		log.Fatalf("migrate %s: %v", *direction, err)
	default:
		log.Printf("migrate: %s complete", *direction)
	}
}
