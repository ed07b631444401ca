// ventilearn-devserver is a local stand-in for the server of record. It
// serves the progress wire contract backed by MySQL, or by SQLite when
// VENTILEARN_DEV_SQLITE points at a database file.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jmoiron/sqlx"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ventilearn/ventilearn/internal/config"
	"github.com/ventilearn/ventilearn/internal/curriculum"
	"github.com/ventilearn/ventilearn/internal/database"
	"github.com/ventilearn/ventilearn/internal/devserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("VENTILEARN_CONFIG"))
	if err != nil {
		return fmt.Errorf("config.Load() > %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	storage, err := devserver.NewStorage(db)
	if err != nil {
		return fmt.Errorf("devserver.NewStorage() > %w", err)
	}

	var graph *curriculum.Graph
	if cfg.Curriculum.File != "" {
		graph, err = curriculum.Load(cfg.Curriculum.File)
		if err != nil {
			log.Printf("Warning: failed to load curriculum, accepting all lessons: %v", err)
			graph = nil
		}
	}

	handler := devserver.NewHandler(storage, graph, cfg.API.Token)

	addr := ":8080"
	log.Printf("Starting server on %s", addr)
	return http.ListenAndServe(addr, corsMiddleware(h2c.NewHandler(handler.Routes(), &http2.Server{})))
}

func openDatabase(cfg *config.Config) (*sqlx.DB, error) {
	if path := os.Getenv("VENTILEARN_DEV_SQLITE"); path != "" {
		db, err := database.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("database.OpenSQLite() > %w", err)
		}
		return db, nil
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database.Open() > %w", err)
	}
	return db, nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "http://localhost:3000")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Learner-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
