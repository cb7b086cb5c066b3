package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"time"

	"github.com/2beens/fittrack/internal"
	"github.com/2beens/fittrack/internal/config"
	"github.com/2beens/fittrack/internal/identity"
	"github.com/2beens/fittrack/internal/logging"
	"github.com/2beens/fittrack/internal/model"
	"github.com/2beens/fittrack/internal/store"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// bootstrap creates the super coach account. Coaches and clients are added
// through the app afterwards.
func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	name := flag.String("name", "Super Coach", "display name of the super coach")
	email := flag.String("email", "", "email of the super coach")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogToStdout: true,
		LogLevel:    cfg.LogLevel,
		Environment: cfg.Environment,
	})

	password := os.Getenv("FITTRACK_SUPER_COACH_PASSWORD")
	if password == "" {
		log.Fatalln("super coach password not set. use FITTRACK_SUPER_COACH_PASSWORD")
	}
	normalizedEmail, err := identity.NormalizeEmail(*email)
	if err != nil {
		log.Fatalf("invalid -email: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	entityStore, err := internal.OpenEntityStore(ctx, cfg, false)
	if err != nil {
		log.Fatalf("open entity store: %s", err)
	}
	defer func() {
		if err := entityStore.Close(); err != nil {
			log.Errorf("close entity store: %s", err)
		}
	}()

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: os.Getenv("FITTRACK_REDIS_PASS"),
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Errorf("close redis client: %s", err)
		}
	}()

	identityService := identity.NewService(cfg.SessionTTL, rdb)
	uid, err := identityService.CreateAccount(ctx, normalizedEmail, password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailAlreadyInUse) {
			log.Warnf("account [%s] already exists, nothing to do", normalizedEmail)
			return
		}
		log.Fatalf("create super coach account: %s", err)
	}

	if err := entityStore.Set(ctx, store.Users, uid, map[string]any{
		"id":        uid,
		"uid":       uid,
		"email":     normalizedEmail,
		"name":      *name,
		"role":      model.RoleSuperCoach,
		"createdAt": store.ServerTimestamp,
	}); err != nil {
		log.Fatalf("create super coach profile for %s: %s", uid, err)
	}

	log.Infof("super coach [%s] created with id [%s]", normalizedEmail, uid)
}
