package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/reqflow/reqflow-backend/pkg/config"
	"github.com/reqflow/reqflow-backend/pkg/database"
	"github.com/reqflow/reqflow-backend/pkg/logger"
	"github.com/reqflow/reqflow-backend/pkg/region"
)

func main() {
	var (
		dir     = flag.String("dir", "migrations", "directory containing ordered .sql scripts")
		regions = flag.String("regions", "", "comma-separated region codes to migrate (default: all configured)")
	)
	flag.Parse()

	cfg, err := config.Load("migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("migrate", cfg.Server.Environment)

	scripts, err := loadScripts(*dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *dir).Msg("failed to load migration scripts")
	}
	if len(scripts) == 0 {
		log.Fatal().Str("dir", *dir).Msg("no .sql scripts found")
	}

	registry := region.NewRegistry(cfg.RegionDSNs)
	codes := registry.Codes()
	if *regions != "" {
		codes = splitRegions(*regions)
	}

	targets := make(map[string]string, len(codes)+1)
	for _, code := range codes {
		dsn, err := registry.DSN(code)
		if err != nil {
			log.Fatal().Str("region", code).Msg("region has no configured database")
		}
		targets[code] = dsn
	}
	if cfg.Database.ClientsURL != "" {
		targets["clients"] = cfg.Database.ClientsURL
	}

	if len(targets) == 0 {
		log.Fatal().Msg("nothing to migrate: no regions configured and no clients database set")
	}

	ctx := context.Background()
	for _, name := range sortedKeys(targets) {
		if err := migrateTarget(ctx, name, targets[name], scripts, log); err != nil {
			log.Fatal().Err(err).Str("target", name).Msg("migration failed")
		}
	}

	log.Info().Int("targets", len(targets)).Int("scripts", len(scripts)).Msg("migrations applied")
}

type script struct {
	name string
	body string
}

// loadScripts reads every .sql file in dir in lexical order. Ordering by
// file name is the migration order contract.
func loadScripts(dir string) ([]script, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scripts := make([]script, 0, len(paths))
	for _, path := range paths {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		scripts = append(scripts, script{name: filepath.Base(path), body: string(body)})
	}
	return scripts, nil
}

// migrateTarget applies every script to one database, stopping at the
// first failure. Scripts are written idempotently, so a partially
// migrated target is fixed by rerunning.
func migrateTarget(ctx context.Context, name, dsn string, scripts []script, log *logger.Logger) error {
	db, err := database.NewWithDSN(dsn, log)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	for _, s := range scripts {
		if _, err := db.ExecContext(ctx, s.body); err != nil {
			return fmt.Errorf("script %s: %w", s.name, err)
		}
		log.Debug().Str("target", name).Str("script", s.name).Msg("applied")
	}

	log.Info().Str("target", name).Int("scripts", len(scripts)).Msg("target migrated")
	return nil
}

func splitRegions(s string) []string {
	parts := strings.Split(s, ",")
	codes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			codes = append(codes, strings.ToLower(p))
		}
	}
	return codes
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
