// Package app provides application initialization and dependency
// wiring. Setup builds the full pipeline (database, Genkit, knowledge
// store, assistant) and App.Close releases it in reverse order.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbitpay/orbit/internal/assistant"
	"github.com/orbitpay/orbit/internal/config"
	"github.com/orbitpay/orbit/internal/knowledge"
	"github.com/orbitpay/orbit/internal/log"
	"github.com/orbitpay/orbit/internal/rag"
	"github.com/orbitpay/orbit/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit    *genkit.Genkit
	DBPool    *pgxpool.Pool
	Knowledge *knowledge.Store
	Sessions  *session.Store
	Ingester  *rag.Ingester
	Assistant *assistant.Assistant

	otelCleanup func()
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
