package app

import (
	"database/sql"

	"gigboard/internal/config"
	"gigboard/internal/db"
	"gigboard/internal/engine"
	"gigboard/internal/migrate"
	"gigboard/internal/notify"
	"gigboard/internal/repo"
)

// Env bundles everything a command needs to run against a workspace.
type Env struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Hub    *notify.Hub
}

// Open prepares a workspace: config loaded, database opened and migrated,
// engine wired to a notification hub. Callers must Close when done.
func Open(workspace string) (*Env, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	hub := notify.NewHub(repo.Repo{DB: conn})
	return &Env{
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg, hub),
		Hub:    hub,
	}, nil
}

func (e *Env) Close() error {
	return e.DB.Close()
}
