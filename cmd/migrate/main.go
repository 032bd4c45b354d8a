package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"stablevault/internal/persistence"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("VAULT_POSTGRES_DSN")
	if dsn == "" {
		dsn = "postgres://localhost:5432/stablevault?sslmode=disable"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("FATAL: open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("FATAL: ping db: %v", err)
	}

	writer := persistence.NewEventWriter(db)
	if err := writer.EnsureSchema(ctx); err != nil {
		log.Fatalf("FATAL: ensure schema: %v", err)
	}
	log.Println("INFO: schema ensured")
}
