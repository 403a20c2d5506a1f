package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"sri-invoice-subscription/internal/config"
	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/repository"
	pg "sri-invoice-subscription/internal/infra/db/postgres"
	"sri-invoice-subscription/internal/infra/redis"
	"sri-invoice-subscription/internal/infra/security"
)

// seed prepares a database: schema, catalog rows and an optional operator
// account. With -reset it first wipes accounts, payments and the redis cache,
// which gives manual end-to-end runs a predictable starting state.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	reset := flag.Bool("reset", false, "wipe accounts, payments and cache before seeding")
	adminEmail := flag.String("admin-email", "", "create an admin account with this email")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	log.Println("[1/4] Applying schema...")
	if err := pg.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if *reset {
		log.Println("[2/4] Wiping accounts, payments and cache...")
		if err := pg.Truncate(ctx, pool); err != nil {
			log.Fatalf("truncate: %v", err)
		}
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		if err := redisClient.FlushDB(ctx); err != nil {
			log.Fatalf("failed to flush redis: %v", err)
		}
		_ = redisClient.Close()
	} else {
		log.Println("[2/4] Keeping existing data")
	}

	log.Println("[3/4] Syncing plan catalog...")
	if err := pg.SyncCatalog(ctx, pool); err != nil {
		log.Fatalf("sync catalog: %v", err)
	}
	for _, p := range model.Plans() {
		fmt.Printf("  - %-13s credits=%-9s days=%-3d price=%s %s\n", p.ID, p.Credits, p.ValidityDays, p.Price(), p.Currency)
	}

	if *adminEmail == "" {
		log.Println("[4/4] No admin account requested")
		return
	}
	log.Println("[4/4] Creating admin account...")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if len(password) < 8 {
		log.Fatalf("SEED_ADMIN_PASSWORD must hold at least 8 characters")
	}
	if err := createAdmin(ctx, pg.NewUserRepo(pool), *adminEmail, password); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			fmt.Printf("%s already exists. No changes.\n", *adminEmail)
			return
		}
		log.Fatalf("create admin: %v", err)
	}
	fmt.Printf("admin %s created\n", *adminEmail)
}

func createAdmin(ctx context.Context, users repository.UserRepository, email, password string) error {
	hash, err := security.NewBcryptHasher(0).Hash(password)
	if err != nil {
		return err
	}
	u, err := model.NewUser(uuid.NewString(), email, hash, "Operator", "", time.Now().UTC())
	if err != nil {
		return err
	}
	u.Role = model.RoleAdmin
	return users.Create(ctx, repository.NoTX, u)
}
