// Package web provides a real-time dashboard for a ring controller: current
// state and counters over REST, control events and raw samples over
// websockets. The server implements the controller's sink interfaces, so it
// plugs in like any other event consumer.
package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-ringwave/internal/log"
	"github.com/teslashibe/go-ringwave/pkg/hub"
	"github.com/teslashibe/go-ringwave/pkg/ring"
)

// EventEntry is one dashboard event: a control event or a state change.
type EventEntry struct {
	Time  string `json:"time"`
	Kind  string `json:"kind"` // "control" or "state"
	Value string `json:"value"`
}

// Status is the /api/state payload.
type Status struct {
	ring.Stats
	LastEvent   string `json:"last_event,omitempty"`
	LastEventAt string `json:"last_event_at,omitempty"`
}

// Server is the dashboard server. It satisfies ring.StateSink,
// ring.ControlSink and ring.RawSink.
type Server struct {
	app  *fiber.App
	port string
	ctrl *ring.Controller

	// Event buffer (last 200 entries)
	events   []EventEntry
	eventsMu sync.RWMutex

	lastEvent   EventEntry
	lastEventMu sync.RWMutex

	// Hubs for websocket broadcast
	eventHub  *hub.Hub
	sampleHub *hub.Hub
}

// NewServer creates a dashboard for the given controller.
func NewServer(ctrl *ring.Controller, port string) *Server {
	s := &Server{
		port:      port,
		ctrl:      ctrl,
		events:    make([]EventEntry, 0, 200),
		eventHub:  hub.New("events"),
		sampleHub: hub.New("samples"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Ringwave Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/events", s.handleEvents)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/samples", websocket.New(s.handleSamplesWS))

	s.app = app
	return s
}

// Start starts the hubs and the HTTP listener. Blocks.
func (s *Server) Start() error {
	log.Info("web: dashboard listening", "port", s.port)
	go s.eventHub.Run()
	go s.sampleHub.Run()
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("web: server error", "err", err)
		}
	}()
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// OnStateChange implements ring.StateSink.
func (s *Server) OnStateChange(st ring.State) {
	s.record(EventEntry{
		Time:  time.Now().Format("15:04:05.000"),
		Kind:  "state",
		Value: st.String(),
	})
}

// OnControlEvent implements ring.ControlSink.
func (s *Server) OnControlEvent(ev ring.ControlEvent) {
	e := EventEntry{
		Time:  time.Now().Format("15:04:05.000"),
		Kind:  "control",
		Value: ev.String(),
	}
	s.lastEventMu.Lock()
	s.lastEvent = e
	s.lastEventMu.Unlock()
	s.record(e)
}

// OnRawSample implements ring.RawSink.
func (s *Server) OnRawSample(sample ring.RawSample) {
	if s.sampleHub.ClientCount() == 0 {
		return
	}
	if data, err := json.Marshal(sample); err == nil {
		s.sampleHub.Broadcast(data)
	}
}

func (s *Server) record(e EventEntry) {
	s.eventsMu.Lock()
	s.events = append(s.events, e)
	if len(s.events) > 200 {
		s.events = s.events[1:]
	}
	s.eventsMu.Unlock()

	if err := s.eventHub.BroadcastJSON(e); err != nil {
		log.Warn("web: event broadcast failed", "err", err)
	}
}

func (s *Server) handleState(c *fiber.Ctx) error {
	s.lastEventMu.RLock()
	last := s.lastEvent
	s.lastEventMu.RUnlock()

	return c.JSON(Status{
		Stats:       s.ctrl.Stats(),
		LastEvent:   last.Value,
		LastEventAt: last.Time,
	})
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	s.eventsMu.RLock()
	out := make([]EventEntry, len(s.events))
	copy(out, s.events)
	s.eventsMu.RUnlock()
	return c.JSON(out)
}

func (s *Server) handleEventsWS(conn *websocket.Conn) {
	hub.NewClient(s.eventHub, conn).Run()
}

func (s *Server) handleSamplesWS(conn *websocket.Conn) {
	hub.NewClient(s.sampleHub, conn).Run()
}
