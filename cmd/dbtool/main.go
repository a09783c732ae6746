package main

import (
	"log"
	"strings"

	"github.com/joho/godotenv"

	"meeting-point-service/internal/adapters/cache"
	"meeting-point-service/internal/config"
	"meeting-point-service/internal/platform/db"
)

// dbtool prepares the Postgres travel-time cache table ahead of deploying
// the server with CACHE_BACKEND=postgres.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := config.Get("DATABASE_URL", "")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	conn, err := db.Open(databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	log.Println("Initializing travel-time cache schema...")
	if err := cache.InitSchema(conn, cache.DialectPostgres); err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}
	log.Println("Schema ready.")
}
