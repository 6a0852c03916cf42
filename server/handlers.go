// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/onnwee/ooye-live/chat"
	"github.com/onnwee/ooye-live/config"
	"github.com/onnwee/ooye-live/script"
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Manager *chat.Manager
	Source  script.Source // used by readiness
	DB      *sql.DB       // nil when no database is configured
	Store   *script.Store // nil when no database is configured
	Config  *config.Config
	Clock   clockwork.Clock
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx      context.Context
	manager  *chat.Manager
	source   script.Source
	db       *sql.DB
	store    *script.Store
	clock    clockwork.Clock
	upgrader websocket.Upgrader
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps, cors *corsConfig) *Handlers {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handlers{
		ctx:     ctx,
		manager: deps.Manager,
		source:  deps.Source,
		db:      deps.DB,
		store:   deps.Store,
		clock:   clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     cors.checkOrigin,
		},
	}
}
