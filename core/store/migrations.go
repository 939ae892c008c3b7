package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"dtp-ingest/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Statements for the sqlite path. The postgres schema lives in
// migrations/*.sql and is applied through goose.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS dtp_buffer (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		city_name TEXT NOT NULL DEFAULT '',
		region_id TEXT NOT NULL,
		district_id TEXT NOT NULL,
		raw_json TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_text TEXT NOT NULL DEFAULT '',
		received_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS dtp_main (
		kart_id TEXT NOT NULL,
		region_id TEXT NOT NULL,
		district_id TEXT NOT NULL,
		row_num INTEGER NOT NULL DEFAULT 0,
		dtp_date TEXT,
		dtp_time TEXT,
		district TEXT NOT NULL DEFAULT '',
		dtp_type TEXT NOT NULL DEFAULT '',
		deaths INTEGER NOT NULL DEFAULT 0,
		wounded INTEGER NOT NULL DEFAULT 0,
		vehicles_count INTEGER NOT NULL DEFAULT 0,
		participants_count INTEGER NOT NULL DEFAULT 0,
		emtp_number TEXT NOT NULL DEFAULT '',
		settlement TEXT NOT NULL DEFAULT '',
		street TEXT NOT NULL DEFAULT '',
		house TEXT NOT NULL DEFAULT '',
		road TEXT NOT NULL DEFAULT '',
		km TEXT NOT NULL DEFAULT '',
		m TEXT NOT NULL DEFAULT '',
		road_category TEXT NOT NULL DEFAULT '',
		road_class TEXT NOT NULL DEFAULT '',
		weather TEXT NOT NULL DEFAULT '',
		road_condition TEXT NOT NULL DEFAULT '',
		lighting TEXT NOT NULL DEFAULT '',
		dtp_severity TEXT NOT NULL DEFAULT '',
		coord_w REAL NOT NULL DEFAULT 0,
		coord_l REAL NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (kart_id, region_id, district_id)
	);`,
	`CREATE TABLE IF NOT EXISTS dtp_vehicles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kart_id TEXT NOT NULL,
		region_id TEXT NOT NULL,
		district_id TEXT NOT NULL,
		vehicle_num TEXT NOT NULL DEFAULT '',
		vehicle_status TEXT NOT NULL DEFAULT '',
		vehicle_type TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		drive_type TEXT NOT NULL DEFAULT '',
		year TEXT NOT NULL DEFAULT '',
		damage TEXT NOT NULL DEFAULT '',
		tech_condition TEXT NOT NULL DEFAULT '',
		ownership TEXT NOT NULL DEFAULT '',
		owner_type TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS dtp_participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kart_id TEXT NOT NULL,
		region_id TEXT NOT NULL,
		district_id TEXT NOT NULL,
		vehicle_num TEXT NOT NULL DEFAULT '',
		participant_type TEXT NOT NULL DEFAULT '',
		violations TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		age TEXT NOT NULL DEFAULT '',
		alcohol TEXT NOT NULL DEFAULT '',
		safety_belt TEXT NOT NULL DEFAULT '',
		participant_num TEXT NOT NULL DEFAULT '',
		seat_group TEXT NOT NULL DEFAULT '',
		injured_card_id TEXT NOT NULL DEFAULT '',
		hidden_status TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS dtp_factors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kart_id TEXT NOT NULL,
		region_id TEXT NOT NULL,
		district_id TEXT NOT NULL,
		factor_type TEXT NOT NULL,
		factor_description TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS dtp_objects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kart_id TEXT NOT NULL,
		region_id TEXT NOT NULL,
		district_id TEXT NOT NULL,
		object_description TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_dtp_buffer_status_id ON dtp_buffer(status, id);`,
	`CREATE INDEX IF NOT EXISTS idx_dtp_vehicles_key ON dtp_vehicles(kart_id, region_id, district_id);`,
	`CREATE INDEX IF NOT EXISTS idx_dtp_participants_key ON dtp_participants(kart_id, region_id, district_id);`,
	`CREATE INDEX IF NOT EXISTS idx_dtp_factors_key ON dtp_factors(kart_id, region_id, district_id);`,
	`CREATE INDEX IF NOT EXISTS idx_dtp_objects_key ON dtp_objects(kart_id, region_id, district_id);`,
}

func ApplyMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	if db.Postgres() {
		return applyGooseMigrations(ctx, db.DB, logger)
	}
	return applySQLiteMigrations(ctx, db.DB, logger)
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply postgres migrations: %w", err)
	}
	logger.Printf("postgres migrations applied")
	return nil
}

func applySQLiteMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	for i, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	logger.Printf("sqlite migrations applied")
	return nil
}
