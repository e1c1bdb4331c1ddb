package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/angelmondragon/storefront/pkg/bootstrap"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/migrate"
)

// Schema commands run the migrations embedded in this binary unless -dir points at a
// directory on disk. create and validate always work on files.
func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory on disk (schema commands default to the embedded set)")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, logg, err := bootstrap.Load("migrate")
	bootstrap.Check(context.Background(), logg, "load config failed", err)

	dialect := migrate.DialectFor(cfg.DB.Driver)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"cmd":     *cmd,
		"dir":     *dir,
		"dialect": dialect,
	})

	switch *cmd {
	case "create":
		if *name == "" {
			bootstrap.Check(ctx, logg, "create failed", errors.New("missing -name"))
		}
		target := *dir
		if target == "" {
			target = migrate.SourceDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		bootstrap.Check(ctx, logg, "create failed", err)
		fmt.Println("created migration:", path)
		return

	case "validate":
		if *dir == "" {
			err = migrate.ValidateFS(migrate.Embedded())
		} else {
			err = migrate.ValidateDir(*dir)
		}
		bootstrap.Check(ctx, logg, "validate failed", err)
		fmt.Println("migration validation passed")
		return

	case "up", "down", "status", "version":
	default:
		bootstrap.Check(ctx, logg, "parse flags failed", fmt.Errorf("unknown -cmd value %q", *cmd))
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	bootstrap.Check(ctx, logg, "connect database failed", err)
	defer bootstrap.Close(logg, "database", dbClient.Close)

	sqlDB, err := dbClient.DB().DB()
	bootstrap.Check(ctx, logg, "sql database failed", err)

	if *cmd == "version" {
		if *version == "" {
			bootstrap.Check(ctx, logg, "version failed", errors.New("missing -version"))
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, dialect, *dir, *version)
	} else {
		err = migrate.Run(ctx, sqlDB, dialect, *dir, *cmd)
	}
	bootstrap.Check(ctx, logg, "goose "+*cmd+" failed", err)
	logg.Info(ctx, "migration command completed")
}
