package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"attendance-backend/internal/models"
	"attendance-backend/internal/services"
)

const EventCode = "code"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type tokenParser interface {
	ParseInstructorToken(tokenStr string) (string, error)
}

type sessionAuthorizer interface {
	GetForClass(ctx context.Context, sessionID uuid.UUID, classID string) (*models.Session, error)
}

type codeSource interface {
	Issue(ctx context.Context, sessionID uuid.UUID) (*services.IssuedCode, error)
}

// display is one connected projector screen. Writes are serialized per
// connection because gorilla connections allow a single concurrent writer.
type display struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (d *display) write(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub pushes a freshly issued code to every display of a session whenever
// the session's secret rotates, on any instance.
type Hub struct {
	mu          sync.RWMutex
	displays    map[uuid.UUID][]*display
	cancelFuncs map[uuid.UUID]context.CancelFunc

	redisClient *redis.Client
	auth        tokenParser
	sessions    sessionAuthorizer
	codes       codeSource
}

func NewHub(redisClient *redis.Client, auth tokenParser, sessions sessionAuthorizer, codes codeSource) *Hub {
	return &Hub{
		displays:    make(map[uuid.UUID][]*display),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		redisClient: redisClient,
		auth:        auth,
		sessions:    sessions,
		codes:       codes,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	classID, err := h.auth.ParseInstructorToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID, err := uuid.Parse(r.URL.Query().Get("session_id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	if _, err := h.sessions.GetForClass(r.Context(), sessionID, classID); err != nil {
		var forbidden *services.ForbiddenError
		if errors.As(err, &forbidden) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	d := &display{conn: conn}
	h.register(sessionID, d)

	// The display shows something immediately instead of waiting a full interval.
	if data, ok := h.codeMessage(r.Context(), sessionID); ok {
		d.write(data)
	}

	go func() {
		defer h.unregister(sessionID, d)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) register(sessionID uuid.UUID, d *display) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.displays[sessionID] = append(h.displays[sessionID], d)

	if len(h.displays[sessionID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
		go h.subscribe(ctx, sessionID)
	}

	log.Printf("WebSocket connected: session %s (total: %d)", sessionID, len(h.displays[sessionID]))
}

func (h *Hub) unregister(sessionID uuid.UUID, d *display) {
	h.mu.Lock()
	defer h.mu.Unlock()

	d.conn.Close()

	list := h.displays[sessionID]
	for i, c := range list {
		if c == d {
			h.displays[sessionID] = append(list[:i], list[i+1:]...)
			break
		}
	}

	if len(h.displays[sessionID]) == 0 {
		delete(h.displays, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
	}

	log.Printf("WebSocket disconnected: session %s", sessionID)
}

func (h *Hub) subscribe(ctx context.Context, sessionID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, models.SessionUpdatesChannel(sessionID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleEvent(ctx, sessionID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) handleEvent(ctx context.Context, sessionID uuid.UUID, raw []byte) {
	var event struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		log.Printf("hub: dropping malformed event for session %s: %v", sessionID, err)
		return
	}

	switch event.Type {
	case services.EventKeyRotated:
		if data, ok := h.codeMessage(ctx, sessionID); ok {
			h.broadcast(sessionID, data)
		}
	case services.EventSessionEnded:
		h.broadcast(sessionID, raw)
	}
}

// codeMessage issues a code for sessionID and wraps it for the wire. An
// ended session yields a session_ended message instead.
func (h *Hub) codeMessage(ctx context.Context, sessionID uuid.UUID) ([]byte, bool) {
	code, err := h.codes.Issue(ctx, sessionID)

	var msg models.WSMessage
	var ended *services.SessionEndedError
	switch {
	case err == nil:
		msg = models.WSMessage{Type: EventCode, Payload: code}
	case errors.As(err, &ended):
		msg = models.WSMessage{Type: services.EventSessionEnded, Payload: models.SessionEndedEvent{SessionID: sessionID}}
	default:
		log.Printf("hub: failed to issue code for session %s: %v", sessionID, err)
		return nil, false
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (h *Hub) broadcast(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	targets := append([]*display(nil), h.displays[sessionID]...)
	h.mu.RUnlock()

	for _, d := range targets {
		if err := d.write(data); err != nil {
			log.Printf("hub: write to display of session %s failed: %v", sessionID, err)
		}
	}
}

// displayCount reports how many displays are attached to sessionID.
func (h *Hub) displayCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.displays[sessionID])
}
