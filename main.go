package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/mbolis/quick-register/app"
	"github.com/mbolis/quick-register/config"
	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/filestore"
	"github.com/mbolis/quick-register/httpx"
	"github.com/mbolis/quick-register/log"
	"github.com/mbolis/quick-register/routes"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	files, err := filestore.NewLocal(cfg.FilesDir)
	if err != nil {
		log.Fatal("main.files:", err)
	}

	app := app.App{
		DB:           db,
		BearerServer: httpx.NewBearerServer(db, cfg),
		Config:       cfg,
		Files:        files,
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
