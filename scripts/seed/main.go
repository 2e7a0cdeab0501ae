package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/estatehub/estatehub/internal/app"
	"github.com/estatehub/estatehub/internal/seed"
	"github.com/estatehub/estatehub/internal/shared"
)

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	services, err := app.BuildServices(ctx, cfg, logger, nil)
	if err != nil {
		log.Fatalf("init services: %v", err)
	}
	defer services.Close()

	fmt.Println("→ Seeding permission catalog...")
	res, err := seed.Catalog(ctx, services.Access, shared.Catalog(), logger)
	if err != nil {
		log.Fatalf("seed catalog: %v", err)
	}
	fmt.Printf("  created %d permissions, %d grants\n", res.Created, res.Granted)

	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email != "" && password != "" {
		fmt.Println("→ Bootstrapping admin...")
		u, err := services.Users.BootstrapAdmin(ctx, email, password)
		if err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
		fmt.Printf("  admin %s (%s)\n", u.Email, u.ID)
	} else {
		fmt.Println("→ SEED_ADMIN_EMAIL/SEED_ADMIN_PASSWORD not set, skipping admin")
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}
