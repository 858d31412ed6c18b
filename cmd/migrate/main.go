// Command migrate applies or rolls back the platform's embedded SQL schema
// against DATABASE_DSN, mirroring the teacher's own migrate binary but
// delegating to internal/platform/migrations instead of a hand-rolled
// migration runner.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/shadowtrace/discovery-platform/internal/platform/config"
	"github.com/shadowtrace/discovery-platform/internal/platform/database"
	"github.com/shadowtrace/discovery-platform/internal/platform/migrations"
)

func main() {
	down := flag.Bool("down", false, "roll back every applied migration instead of applying pending ones")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DatabaseDSN, database.DefaultPoolConfig())
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if *down {
		if err := migrations.Down(ctx, db); err != nil {
			log.Fatalf("roll back migrations: %v", err)
		}
		log.Println("migrations rolled back")
		return
	}

	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	log.Println("migrations applied")
}
