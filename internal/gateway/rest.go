package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// replyWait bounds how long one HTTP visitor waits for an agent reply.
const replyWait = 60 * time.Second

// RESTAdapter lets visitors talk to agents over plain HTTP. Each
// request gets a throwaway channel id and blocks on a buffered reply
// channel until the bridge answers or the wait runs out.
type RESTAdapter struct {
	mu        sync.RWMutex
	waiters   map[string]chan *OutboundMessage
	handler   MessageHandler
	connected bool
	logger    *zap.Logger
}

// NewRESTAdapter creates the HTTP visitor adapter.
func NewRESTAdapter(logger *zap.Logger) *RESTAdapter {
	return &RESTAdapter{
		waiters: make(map[string]chan *OutboundMessage),
		logger:  logger,
	}
}

func (a *RESTAdapter) Platform() string { return "rest" }

func (a *RESTAdapter) OnMessage(h MessageHandler) { a.handler = h }

func (a *RESTAdapter) Connect(_ context.Context) error {
	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()
	return nil
}

func (a *RESTAdapter) Close() error { return nil }

// Send hands the reply to the request waiting on msg.ChannelID.
func (a *RESTAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	a.mu.RLock()
	ch, ok := a.waiters[msg.ChannelID]
	a.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no waiter for channel %s", msg.ChannelID)
	}
	select {
	case ch <- msg:
		return nil
	default:
		return fmt.Errorf("waiter %s already answered", msg.ChannelID)
	}
}

// Routes returns the HTTP surface of the adapter.
func (a *RESTAdapter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/message", a.handleMessage)
	return r
}

type visitorRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Content  string `json:"content"`
}

// handleMessage accepts one visitor message and blocks until the agent
// reply arrives.
func (a *RESTAdapter) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req visitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, `{"error":"content is required"}`, http.StatusBadRequest)
		return
	}

	channelID := uuid.New().String()
	ch := make(chan *OutboundMessage, 1)

	a.mu.Lock()
	a.waiters[channelID] = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.waiters, channelID)
		a.mu.Unlock()
	}()

	if a.handler != nil {
		a.handler(&InboundMessage{
			Platform:  "rest",
			ChannelID: channelID,
			UserID:    req.UserID,
			UserName:  req.UserName,
			Content:   req.Content,
			Timestamp: time.Now(),
		})
	}

	select {
	case msg := <-ch:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(msg)
	case <-time.After(replyWait):
		http.Error(w, `{"error":"response timeout"}`, http.StatusGatewayTimeout)
	case <-r.Context().Done():
	}
}

// Broadcast pushes an announcement to every request currently waiting.
// Waiters that already have a reply queued are skipped.
func (a *RESTAdapter) Broadcast(_ context.Context, msg *BroadcastMessage) error {
	text := fmt.Sprintf("[%s] %s\n%s", msg.Type, msg.Title, msg.Content)

	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, ch := range a.waiters {
		select {
		case ch <- &OutboundMessage{Platform: "rest", Content: text}:
		default:
		}
	}
	return nil
}

// Status reports the adapter's connection state.
func (a *RESTAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AdapterStatus{
		Platform:  "rest",
		Connected: a.connected,
		Details:   fmt.Sprintf("active_channels=%d", len(a.waiters)),
	}
}
