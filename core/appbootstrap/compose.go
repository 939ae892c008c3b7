package appbootstrap

import (
	"dtp-ingest/api"
	"dtp-ingest/config"
	"dtp-ingest/core/dtp"
	"dtp-ingest/core/store"
	"dtp-ingest/core/utils"
)

type runtimeComposition struct {
	server    *api.Server
	driver    *dtp.Driver
	scheduler *dtp.Scheduler
}

func composeRuntime(cfg *config.AppConfig, db *store.DB, logger *utils.Logger) *runtimeComposition {
	buffer := store.NewBufferStore(db)
	writer := store.NewEntityWriter(db)
	driver := dtp.NewDriver(db, buffer, writer, cfg.Ingest, logger)
	scheduler := dtp.NewScheduler(cfg.Scheduler, driver, logger)
	server := api.NewServer(cfg, api.ServerDeps{Buffer: buffer, Driver: driver}, logger)

	return &runtimeComposition{
		server:    server,
		driver:    driver,
		scheduler: scheduler,
	}
}
