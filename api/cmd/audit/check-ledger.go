package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"bazaar/api/internal/db/postgres"
)

// checks are the consistency rules the schema cannot fully express on
// its own. Each query returns the number of violating rows.
var checks = []struct {
	name  string
	query string
}{
	{
		name: "every app has at most one latest version",
		query: `SELECT COUNT(*) FROM (
					SELECT app_id FROM app_versions
					WHERE is_latest = TRUE
					GROUP BY app_id HAVING COUNT(*) > 1
				) dup`,
	},
	{
		name: "no latest pointer rests on a non-completed version",
		query: `SELECT COUNT(*) FROM app_versions
				WHERE is_latest = TRUE AND upload_status <> 'completed'`,
	},
	{
		name: "every published app has a completed version",
		query: `SELECT COUNT(*) FROM apps a
				WHERE a.is_published = TRUE
				  AND NOT EXISTS (
					SELECT 1 FROM app_versions v
					WHERE v.app_id = a.app_id AND v.upload_status = 'completed'
				  )`,
	},
	{
		name: "no installation references a missing version",
		query: `SELECT COUNT(*) FROM installations i
				WHERE NOT EXISTS (
					SELECT 1 FROM app_versions v
					WHERE v.app_id = i.app_id AND v.version = i.version
				)`,
	},
	{
		name: "uninstalled rows carry an uninstall timestamp",
		query: `SELECT COUNT(*) FROM installations
				WHERE status = 'uninstalled' AND uninstalled_at IS NULL`,
	},
	{
		name: "active rows carry no uninstall timestamp",
		query: `SELECT COUNT(*) FROM installations
				WHERE status <> 'uninstalled' AND uninstalled_at IS NOT NULL`,
	},
}

func main() {
	fmt.Println("bazaar: running ledger consistency audit...")

	if err := godotenv.Load(); err != nil {
		fmt.Println("warning: no .env file found, checking system env vars...")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("CRITICAL: DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		log.Fatalf("CRITICAL: database unreachable: %v", err)
	}
	defer pool.Close()

	hasErrors := false
	for _, c := range checks {
		var violations int
		if err := pool.QueryRow(ctx, c.query).Scan(&violations); err != nil {
			fmt.Printf("FAIL: %s (query error: %v)\n", c.name, err)
			hasErrors = true
			continue
		}
		if violations > 0 {
			fmt.Printf("FAIL: %s (%d violating rows)\n", c.name, violations)
			hasErrors = true
			continue
		}
		fmt.Printf("PASS: %s\n", c.name)
	}

	if hasErrors {
		fmt.Println("audit finished with failures")
		os.Exit(1)
	}
	fmt.Println("audit clean")
}
