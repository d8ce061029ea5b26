// Package api exposes the engine's decisions and prediction history over
// HTTP and streams live decisions to websocket clients.
package api

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/signalsfoundry/handover-engine/core"
	"github.com/signalsfoundry/handover-engine/engine"
	"github.com/signalsfoundry/handover-engine/internal/logging"
	"github.com/signalsfoundry/handover-engine/model"
)

// Server is the engine's HTTP surface.
type Server struct {
	app     *fiber.App
	addr    string
	engine  *engine.Engine
	history *core.PredictionHistory
	syncReg *core.SyncPointRegistry
	log     logging.Logger
}

// Config holds the server's wiring.
type Config struct {
	Addr           string
	Engine         *engine.Engine
	History        *core.PredictionHistory
	SyncRegistry   *core.SyncPointRegistry
	MetricsHandler http.Handler
	Logger         logging.Logger
}

// NewServer builds the fiber app and registers all routes.
func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}

	s := &Server{
		addr:    cfg.Addr,
		engine:  cfg.Engine,
		history: cfg.History,
		syncReg: cfg.SyncRegistry,
		log:     log,
	}

	app := fiber.New(fiber.Config{
		AppName:               "handover-engine",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealthz)
	if cfg.MetricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.MetricsHandler))
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/decisions/:ue_id", s.handleLatestDecision)
	api.Get("/decisions/:ue_id/history", s.handleDecisionHistory)
	api.Get("/predictions/:ue_id/:satellite_id", s.handlePredictions)
	api.Get("/sync", s.handleListSyncPoints)
	api.Put("/sync/:domain", s.handleUpdateSyncPoint)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/decisions", websocket.New(s.handleDecisionsWS))

	s.app = app
	return s
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving HTTP until Shutdown is called.
func (s *Server) Listen() error {
	s.log.Info(context.Background(), "api server listening", logging.String("addr", s.addr))
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus reports every supervised pair and its current phase.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"pairs": s.engine.Status()})
}

// handleLatestDecision returns the most recent decision for a UE.
func (s *Server) handleLatestDecision(c *fiber.Ctx) error {
	ueID := c.Params("ue_id")
	d, ok := s.engine.Feed().Latest(ueID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no decision for ue " + ueID,
		})
	}
	return c.JSON(d)
}

func (s *Server) handleDecisionHistory(c *fiber.Ctx) error {
	return c.JSON(s.engine.Feed().History(c.Params("ue_id")))
}

// handlePredictions returns the recorded access predictions for one
// (UE, satellite) pair, oldest first.
func (s *Server) handlePredictions(c *fiber.Ctx) error {
	if s.history == nil {
		return c.JSON([]model.AccessPrediction{})
	}
	return c.JSON(s.history.List(c.Params("ue_id"), c.Params("satellite_id")))
}

func (s *Server) handleListSyncPoints(c *fiber.Ctx) error {
	out := make(map[string]model.SyncPoint)
	if s.syncReg != nil {
		for _, domain := range s.syncReg.Domains() {
			if sp, ok := s.syncReg.Get(domain); ok {
				out[domain] = sp
			}
		}
	}
	return c.JSON(out)
}

// handleUpdateSyncPoint ingests a sync point for a timing domain. Updates
// that would degrade accuracy are rejected unless marked as a resync.
func (s *Server) handleUpdateSyncPoint(c *fiber.Ctx) error {
	if s.syncReg == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "sync registry not configured",
		})
	}

	var sp model.SyncPoint
	if err := c.BodyParser(&sp); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.syncReg.Update(c.Params("domain"), sp); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"domain": c.Params("domain"), "accepted": true})
}

// handleDecisionsWS streams decisions to the client as they are emitted.
// A slow client drops decisions rather than stalling the feed.
func (s *Server) handleDecisionsWS(c *websocket.Conn) {
	updates := make(chan model.HandoverDecision, 16)
	unsubscribe := s.engine.Feed().Subscribe(func(d model.HandoverDecision) {
		select {
		case updates <- d:
		default:
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case d := <-updates:
			if err := c.WriteJSON(d); err != nil {
				return
			}
		}
	}
}
