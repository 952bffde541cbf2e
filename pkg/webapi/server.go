package webapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/NotCoffee418/multical401/pkg/sensor"
	"github.com/NotCoffee418/multical401/pkg/types"
)

// Meter is the read side of a meter_reader.MeterReader.
type Meter interface {
	Name() string
	Current() (types.Reading, bool)
}

type Config struct {
	RateLimit      float64
	RateLimitBurst int
}

// Server exposes current readings over HTTP and broadcasts new ones over websockets.
type Server struct {
	meters   []Meter
	entities []*sensor.Entity
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	wsClients      map[*websocket.Conn]bool
	wsClientsMutex sync.RWMutex
}

func NewServer(meters []Meter, entities []*sensor.Entity, gatherer prometheus.Gatherer, cfg Config, logger *logrus.Logger) *Server {
	return &Server{
		meters:   meters,
		entities: entities,
		gatherer: gatherer,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Dashboards on the LAN connect from anywhere
			},
		},
		wsClients: make(map[*websocket.Conn]bool),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/latest", s.handleLatest)
	mux.HandleFunc("/sensors", s.handleSensors)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return s.rateLimit(mux)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Multical 401 Meter API",
		"status":  "running",
		"meters":  len(s.meters),
	})
}

// handleLatest answers with the current reading of every meter that has one.
// ?meter= narrows it down to a single meter.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	wanted := r.URL.Query().Get("meter")
	readings := map[string]types.Reading{}
	for _, m := range s.meters {
		if wanted != "" && m.Name() != wanted {
			continue
		}
		if reading, ok := m.Current(); ok {
			readings[m.Name()] = reading
		}
	}

	if len(readings) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "No readings available yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	states := make([]sensor.State, 0, len(s.entities))
	for _, e := range s.entities {
		states = append(states, e.State())
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	// Send current readings before registering, so a broadcast cannot interleave.
	for _, m := range s.meters {
		if reading, ok := m.Current(); ok {
			msg := &types.MeterReadingMessage{Meter: m.Name(), Reading: reading}
			conn.WriteMessage(websocket.TextMessage, msg.ToJsonBytes())
		}
	}
	s.addWebSocketClient(conn)

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.removeWebSocketClient(conn)
			break
		}
	}
}

// Broadcast sends a newly accepted reading to every websocket client.
func (s *Server) Broadcast(meter string, reading types.Reading) {
	msg := &types.MeterReadingMessage{Meter: meter, Reading: reading}
	data := msg.ToJsonBytes()

	s.wsClientsMutex.Lock()
	defer s.wsClientsMutex.Unlock()
	for client := range s.wsClients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(s.wsClients, client)
			client.Close()
		}
	}
}

func (s *Server) ClientCount() int {
	s.wsClientsMutex.RLock()
	defer s.wsClientsMutex.RUnlock()
	return len(s.wsClients)
}

func (s *Server) addWebSocketClient(conn *websocket.Conn) {
	s.wsClientsMutex.Lock()
	s.wsClients[conn] = true
	s.wsClientsMutex.Unlock()
}

func (s *Server) removeWebSocketClient(conn *websocket.Conn) {
	s.wsClientsMutex.Lock()
	delete(s.wsClients, conn)
	s.wsClientsMutex.Unlock()
	conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
