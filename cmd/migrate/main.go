package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/pressly/goose/v3"

	"gomorgue/config"
	"gomorgue/internal/pkg/database"
	"gomorgue/migrations"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("goose: falha ao carregar configurações: %v", err)
	}
	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatalf("goose: migrações exigem STORAGE_DRIVER=postgres (atual: %s)", cfg.StorageDriver)
	}

	flag.Parse()
	ctx := context.Background()

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		log.Fatalf("goose: falha ao conectar ao DB: %v\n", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Fatalf("goose: falha ao fechar o DB: %v\n", err)
		}
	}()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("goose: %v", err)
	}

	arguments := flag.Args()
	if len(arguments) == 0 {
		arguments = []string{"up"}
	}

	command := arguments[0]
	var args []string
	if len(arguments) > 1 {
		args = arguments[1:]
	}

	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		log.Fatalf("goose %v: %v", command, err)
	}

	fmt.Printf("goose %s success\n", command)
}
