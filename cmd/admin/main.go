package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"racuni/internal/domain/entity"
	"racuni/internal/domain/syncer"
	"racuni/internal/infrastructure/postgres"
	"racuni/internal/shared/auth"
	"racuni/internal/shared/config"
)

const usage = `Racuni Admin CLI - Management commands for the Racuni sync API

Usage:
  admin <command> [options]

Commands:
  migrate      Apply pending database migrations
  migrations   List embedded migrations and their checksums
  token        Issue a bearer token for a user
  stats        Print live entity counts for a user

Examples:
  # Bring the schema up to date
  admin migrate

  # Issue a token valid for one hour
  admin token --user-id=u-123 --ttl=1h

  # Inspect what a user has on the server
  admin stats --user-id=u-123
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "migrate":
		runMigrate(os.Args[2:])
	case "migrations":
		runListMigrations()
	case "token":
		runToken(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	timeoutStr := fs.String("timeout", "5m", "Timeout for the operation (e.g., 30s, 5m)")

	fs.Usage = func() {
		fmt.Println("Usage: admin migrate [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	db := connect()
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	applied, err := db.Migrate(ctx)
	if err != nil {
		log.Fatalf("Migration failed after %d applied: %v", applied, err)
	}

	fmt.Printf("Applied %d migration(s)\n", applied)
}

func runListMigrations() {
	migrations, err := postgres.Migrations()
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}
	for _, m := range migrations {
		fmt.Printf("V%-4d %-32s %s\n", m.Version, m.Description, m.Checksum[:12])
	}
}

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)

	userID := fs.String("user-id", "", "User ID to embed in the token (required)")
	email := fs.String("email", "", "Optional email claim")
	ttl := fs.Duration("ttl", auth.DefaultTTL, "Token lifetime (e.g., 1h, 720h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin token [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin token --user-id=u-123")
		fmt.Println("  admin token --user-id=u-123 --email=ana@example.com --ttl=720h")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *userID == "" {
		fmt.Println("Error: must specify --user-id")
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	token, err := auth.NewJWT(cfg.JWT.Secret).GenerateWithTTL(*userID, *email, *ttl)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Println(token)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	userID := fs.String("user-id", "", "User ID to inspect (required)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *userID == "" {
		fmt.Println("Error: must specify --user-id")
		fs.Usage()
		os.Exit(1)
	}

	db := connect()
	defer db.Close()

	registry := entity.NewRegistry()
	service := syncer.NewService(registry, postgres.NewEntityStore(db, registry))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	diag, err := service.Diagnose(ctx, *userID)
	if err != nil {
		log.Fatalf("Failed to collect stats: %v", err)
	}

	collections := make([]string, 0, len(diag.Counts))
	for c := range diag.Counts {
		collections = append(collections, c)
	}
	sort.Strings(collections)

	fmt.Printf("User %s\n", diag.UserID)
	for _, c := range collections {
		latest := "-"
		if t := diag.LatestUpdates[c]; t != nil {
			latest = t.Format(time.RFC3339)
		}
		fmt.Printf("  %-16s %6d  %s\n", c, diag.Counts[c], latest)
	}
	for _, c := range diag.Failed {
		fmt.Printf("  %-16s failed\n", c)
	}
}

func connect() *postgres.DB {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.Open(context.Background(), cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")
	return db
}
