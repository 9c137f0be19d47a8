package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/csschan/unitpay-sub001/internal/metrics"
	"github.com/csschan/unitpay-sub001/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Should check Origin in production environment
		return true
	},
}

// Connection one websocket client registered for an address
type Connection struct {
	ID          string          `json:"id"`
	UserAddress string          `json:"user_address"`
	Conn        *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	LastPing    time.Time       `json:"last_ping"`
}

// PushMessage push message base structure
type PushMessage struct {
	Type        string      `json:"type"`
	Timestamp   string      `json:"timestamp"`
	MessageID   string      `json:"message_id"`
	UserAddress string      `json:"user_address,omitempty"`
	Data        interface{} `json:"data"`
}

// WebSocketPushService delivers payment events to connected wallets. It is
// an injected service with explicit lifecycle, not package-level state:
// construct, Start, Stop.
type WebSocketPushService struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // connection ID -> connection
	byAddress   map[string]map[string]*Connection // wallet address -> connection ID -> connection
	stopCh      chan struct{}
	wg          sync.WaitGroup
	running     bool
}

// NewWebSocketPushService creates the push service.
func NewWebSocketPushService() *WebSocketPushService {
	return &WebSocketPushService{
		connections: make(map[string]*Connection),
		byAddress:   make(map[string]map[string]*Connection),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the ping loop.
func (s *WebSocketPushService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pingLoop()
	log.Printf("🚀 WebSocket push service started")
}

// Stop closes all connections and stops the ping loop.
func (s *WebSocketPushService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.mu.Lock()
	for _, conn := range s.connections {
		close(conn.Send)
		conn.Conn.Close()
	}
	s.connections = make(map[string]*Connection)
	s.byAddress = make(map[string]map[string]*Connection)
	s.mu.Unlock()
	log.Printf("🛑 WebSocket push service stopped")
}

// HandleConnection upgrades an HTTP request and registers the client under
// its wallet address.
func (s *WebSocketPushService) HandleConnection(w http.ResponseWriter, r *http.Request) {
	rawAddr := r.URL.Query().Get("address")
	addr, err := types.ParseAddress(rawAddr)
	if err != nil {
		http.Error(w, "invalid wallet address", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ [WS] Upgrade failed: %v", err)
		return
	}

	conn := &Connection{
		ID:          uuid.New().String(),
		UserAddress: addr.String(),
		Conn:        ws,
		Send:        make(chan []byte, 64),
		LastPing:    time.Now(),
	}

	s.register(conn)
	go s.writePump(conn)
	go s.readPump(conn)
}

func (s *WebSocketPushService) register(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.ID] = conn
	if s.byAddress[conn.UserAddress] == nil {
		s.byAddress[conn.UserAddress] = make(map[string]*Connection)
	}
	s.byAddress[conn.UserAddress][conn.ID] = conn
	metrics.WebSocketConnections.Set(float64(len(s.connections)))
	log.Printf("✅ [WS] Connection %s registered for %s", conn.ID, conn.UserAddress)
}

func (s *WebSocketPushService) unregister(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[conn.ID]; !ok {
		return
	}
	delete(s.connections, conn.ID)
	if peers := s.byAddress[conn.UserAddress]; peers != nil {
		delete(peers, conn.ID)
		if len(peers) == 0 {
			delete(s.byAddress, conn.UserAddress)
		}
	}
	close(conn.Send)
	conn.Conn.Close()
	metrics.WebSocketConnections.Set(float64(len(s.connections)))
	log.Printf("🔌 [WS] Connection %s unregistered", conn.ID)
}

func (s *WebSocketPushService) readPump(conn *Connection) {
	defer s.unregister(conn)
	conn.Conn.SetReadLimit(4096)
	conn.Conn.SetPongHandler(func(string) error {
		conn.LastPing = time.Now()
		return nil
	})
	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WebSocketPushService) writePump(conn *Connection) {
	for msg := range conn.Send {
		if err := conn.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *WebSocketPushService) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			conns := make([]*Connection, 0, len(s.connections))
			for _, c := range s.connections {
				conns = append(conns, c)
			}
			s.mu.RUnlock()
			for _, c := range conns {
				if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					s.unregister(c)
				}
			}
		}
	}
}

// Emit implements NotificationEmitter. The event is pushed to every
// connection of both the user and the LP address; silently dropped for
// addresses with no open connection.
func (s *WebSocketPushService) Emit(event string, payload NotificationPayload) {
	msg := PushMessage{
		Type:      event,
		Timestamp: time.Now().Format(time.RFC3339),
		MessageID: uuid.New().String(),
		Data:      payload,
	}

	for _, addr := range []string{payload.UserAddress, payload.LPAddress} {
		if addr == "" {
			continue
		}
		msg.UserAddress = addr
		body, err := json.Marshal(msg)
		if err != nil {
			log.Printf("❌ [WS] Failed to marshal %s: %v", event, err)
			metrics.NotificationsFailed.WithLabelValues(event, "websocket").Inc()
			continue
		}
		s.pushToAddress(addr, event, body)
	}
}

func (s *WebSocketPushService) pushToAddress(addr, event string, body []byte) {
	// The read lock is held across the sends. unregister closes Send under
	// the write lock, so a channel can never be closed mid-push.
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.byAddress[addr] {
		select {
		case c.Send <- body:
			metrics.NotificationsSent.WithLabelValues(event, "websocket").Inc()
		default:
			// Slow consumer: drop the message rather than block the caller.
			metrics.NotificationsFailed.WithLabelValues(event, "websocket").Inc()
		}
	}
}

// ConnectionCount number of open connections, used by the health endpoint.
func (s *WebSocketPushService) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
