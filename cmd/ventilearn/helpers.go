package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ventilearn/ventilearn/internal/config"
	"github.com/ventilearn/ventilearn/internal/curriculum"
	"github.com/ventilearn/ventilearn/internal/database"
	"github.com/ventilearn/ventilearn/internal/outbox"
	"github.com/ventilearn/ventilearn/internal/progress"
	"github.com/ventilearn/ventilearn/internal/syncapi"
	"github.com/ventilearn/ventilearn/internal/syncengine"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.Load() > %w", err)
	}
	return cfg, nil
}

// session bundles the pieces a command needs to work with progress.
type session struct {
	cfg    *config.Config
	graph  *curriculum.Graph
	store  *progress.Store
	queue  outbox.Store
	client *syncapi.Client
	engine *syncengine.Engine

	closers []func() error
}

func newSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	graph, err := curriculum.Load(cfg.Curriculum.File)
	if err != nil {
		return nil, fmt.Errorf("curriculum.Load() > %w", err)
	}

	s := &session{
		cfg:   cfg,
		graph: graph,
		store: progress.NewStore(graph),
	}

	switch cfg.Outbox.Driver {
	case "sqlite":
		db, err := database.OpenSQLite(cfg.Outbox.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("database.OpenSQLite() > %w", err)
		}
		s.closers = append(s.closers, db.Close)
		queue, err := outbox.NewSQLiteStore(db)
		if err != nil {
			return nil, fmt.Errorf("outbox.NewSQLiteStore() > %w", err)
		}
		s.queue = queue
	default:
		queue, err := outbox.NewFileStore(cfg.Outbox.Path)
		if err != nil {
			return nil, fmt.Errorf("outbox.NewFileStore() > %w", err)
		}
		s.queue = queue
	}

	s.client = syncapi.NewClient(
		cfg.Server.BaseURL,
		syncapi.StaticTokenProvider(cfg.API.Token),
		cfg.Learner.ID,
		time.Duration(cfg.Server.TimeoutSeconds)*time.Second,
	)
	s.closers = append(s.closers, s.client.Close)

	s.engine = syncengine.New(graph, s.store, s.queue, s.client)
	return s, nil
}

func (s *session) close() {
	if s.engine != nil {
		s.engine.Close()
	}
	for _, closeFn := range s.closers {
		_ = closeFn()
	}
}

// hydrate pulls the server's records into the local store so views and
// reports reflect confirmed state. Network failures are not fatal: the
// local view simply stays as-is.
func (s *session) hydrate(ctx context.Context) error {
	records, err := s.client.FetchProgress(ctx, "", "")
	if err != nil {
		return fmt.Errorf("client.FetchProgress() > %w", err)
	}
	for _, record := range records {
		s.store.ApplyConfirmed(record.ModuleID, record.LessonID, record)
	}
	return nil
}
