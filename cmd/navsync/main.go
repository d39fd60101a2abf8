package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"finnest/internal/database"
	"finnest/internal/nav"
)

// navsync runs one NAV refresh pass from the command line, mirroring what the
// daily scheduler does inside the server. Useful for manual catch-ups after a
// market holiday or when testing against a fresh database.
func main() {
	userID := flag.String("user", "", "refresh only this user's holdings (default: all users)")
	flag.Parse()

	godotenv.Load()
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		log.Fatal("POSTGRES_URL is required")
	}

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	repo := database.New(db, logger)
	client := nav.NewClient(os.Getenv("MFAPI_BASE_URL"), logger)
	refresher := nav.NewRefresher(repo, client, &nav.LogEmailer{Log: logger}, logger)

	stats, err := refresher.Run(context.Background(), *userID)
	if err != nil {
		log.Fatalf("nav refresh failed: %v", err)
	}

	out, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(out))
}
