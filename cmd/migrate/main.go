package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/dropDatabas3/proctoken/internal/audit"
	"github.com/dropDatabas3/proctoken/internal/config"
)

// migrate aplica el schema de audit sin levantar el nodo (útil en pipelines de deploy).
func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to YAML config")
		envFile    = flag.String("env-file", ".env", "ruta a .env")
		dsn        = flag.String("dsn", "", "DSN de Postgres (pisa audit.postgres_dsn)")
		timeout    = flag.Duration("timeout", time.Minute, "Timeout total")
	)
	flag.Parse()

	if *envFile != "" {
		_ = godotenv.Load(*envFile)
	}

	action := "up"
	if args := flag.Args(); len(args) >= 1 && args[0] != "" {
		action = strings.ToLower(args[0])
	}
	if action != "up" {
		log.Fatalf("unknown action %q. Use: up", action)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	target := cfg.Audit.PostgresDSN
	if *dsn != "" {
		target = *dsn
	}
	if target == "" {
		log.Fatal("no postgres dsn (use -dsn or AUDIT_PG_DSN)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, target)
	if err != nil {
		log.Fatalf("pgxpool: %v", err)
	}
	defer pool.Close()

	start := time.Now()
	applied, err := audit.EnsureSchema(ctx, pool)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if applied == 0 {
		log.Println("Schema up to date. Nothing to do.")
		return
	}
	log.Printf("Applied %d migration(s) in %s", applied, time.Since(start).Truncate(time.Millisecond))
}
