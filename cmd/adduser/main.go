// cmd/adduser/main.go
// Creates or updates a web API user in the database.
//
// Usage:
//
//	go run ./cmd/adduser -username padraic -password testing
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"go.uber.org/zap"

	"github.com/padraicbc/trms/config"
	"github.com/padraicbc/trms/db"
	"github.com/padraicbc/trms/handlers"
	"github.com/padraicbc/trms/paths"
	"github.com/padraicbc/trms/store"
)

func main() {
	username := flag.String("username", "", "username (required)")
	password := flag.String("password", "", "plain-text password (required)")
	env := flag.String("env", "", "configuration environment (default $TRMS_ENV or development)")
	flag.Parse()

	hash, err := handlers.HashPasswordForUser(*username, *password)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load(paths.New(), *env)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	mgr, err := db.Connect(ctx, cfg.Database, zap.NewNop())
	if err != nil {
		log.Fatal("connect:", err)
	}
	defer mgr.Close()

	if err := mgr.Migrate(ctx); err != nil {
		log.Fatal("create tables:", err)
	}
	name := strings.TrimSpace(*username)
	if err := store.NewUsers(mgr, zap.NewNop()).Save(ctx, name, hash); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("user %q saved\n", name)
}
