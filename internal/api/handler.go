package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/agent"
	"github.com/nidhogg/milgram/internal/archive"
	"github.com/nidhogg/milgram/internal/gateway"
	"github.com/nidhogg/milgram/internal/memory"
	"github.com/nidhogg/milgram/internal/message"
	"github.com/nidhogg/milgram/internal/metrics"
	"github.com/nidhogg/milgram/internal/provider"
	"github.com/nidhogg/milgram/internal/social"
	"github.com/nidhogg/milgram/internal/world"
)

// Handler carries every subsystem the HTTP surface exposes.
type Handler struct {
	env         *world.Environment
	store       memory.Store
	router      *provider.Router
	graph       *social.Graph
	clock       *world.Clock
	reflector   *world.Reflector
	archive     *archive.Archive
	broadcaster *gateway.Broadcaster
	gw          *gateway.Gateway
	restGW      *gateway.RESTAdapter
	hub         *Hub
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewHandler wires the API surface to its backing subsystems.
func NewHandler(
	env *world.Environment,
	store memory.Store,
	router *provider.Router,
	graph *social.Graph,
	clock *world.Clock,
	reflector *world.Reflector,
	arch *archive.Archive,
	broadcaster *gateway.Broadcaster,
	gw *gateway.Gateway,
	restGW *gateway.RESTAdapter,
	hub *Hub,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		env:         env,
		store:       store,
		router:      router,
		graph:       graph,
		clock:       clock,
		reflector:   reflector,
		archive:     arch,
		broadcaster: broadcaster,
		gw:          gw,
		restGW:      restGW,
		hub:         hub,
		metrics:     m,
		logger:      logger,
	}
}

// Router assembles the chi route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/world/status", h.worldStatus)
		r.Get("/history", h.history)
		r.Post("/broadcast", h.broadcast)

		// Agent routes
		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Get("/agents/{name}", h.getAgent)
		r.Post("/agents/{name}/messages", h.sendMessage)
		r.Get("/agents/{name}/network", h.socialNetwork)
		r.Get("/agents/{name}/relationships", h.listRelationships)
		r.Post("/agents/{name}/relationships", h.adjustRelationship)
		r.Get("/agents/{name}/goals", h.listGoals)
		r.Post("/agents/{name}/goals", h.setGoal)

		// Memory routes
		r.Get("/agents/{name}/memories", h.listMemories)
		r.Post("/agents/{name}/memories", h.storeMemory)
		r.Delete("/agents/{name}/memories", h.pruneMemories)

		// Reasoning routes
		r.Post("/agents/{name}/think", h.think)
		r.Post("/agents/{name}/decide", h.decide)
		r.Post("/reflect", h.triggerReflection)
		r.Get("/providers", h.listProviders)

		// Durable graph routes
		r.Get("/graph/reachable", h.graphReachable)

		// Archive routes
		r.Get("/archive", h.archiveRecent)

		// Gateway routes
		r.Post("/gateway/broadcast", h.platformBroadcast)
		r.Get("/gateway/status", h.gatewayStatus)
		if h.restGW != nil {
			r.Mount("/gateway/chat", h.restGW.Routes())
		}

		r.Get("/ws", h.handleWS)
	})

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	return r
}

// agentView is the JSON shape of one agent.
type agentView struct {
	ID            string                     `json:"id"`
	Name          string                     `json:"name"`
	Demographics  agent.Demographics         `json:"demographics"`
	Personality   agent.Personality          `json:"personality"`
	Influence     float64                    `json:"influence"`
	Focus         string                     `json:"focus,omitempty"`
	Attached      bool                       `json:"attached"`
	Peers         []string                   `json:"peers"`
	Relationships map[string]float64         `json:"relationships"`
	Goals         []agent.Goal               `json:"goals"`
	Beliefs       map[string]float64         `json:"beliefs,omitempty"`
	Values        map[string]float64         `json:"values,omitempty"`
	State         map[string]message.Content `json:"state,omitempty"`
}

func newAgentView(a *agent.Agent) agentView {
	return agentView{
		ID:            a.ID.String(),
		Name:          a.Name,
		Demographics:  a.Demographics,
		Personality:   a.Personality,
		Influence:     a.Influence,
		Focus:         a.Focus(),
		Attached:      a.Attached(),
		Peers:         a.Network.Names(),
		Relationships: a.Relationships.Snapshot(),
		Goals:         a.Goals(),
		Beliefs:       a.Beliefs(),
		Values:        a.Values(),
		State:         a.StateSnapshot(),
	}
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "world": "milgram"})
}

func (h *Handler) worldStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"world":       "milgram",
		"world_time":  h.clock.Time(),
		"agent_count": h.env.Len(),
		"agents":      h.env.Names(),
	})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	writeJSON(w, http.StatusOK, h.env.History(limit))
}

type broadcastRequest struct {
	Sender  string          `json:"sender"`
	Content json.RawMessage `json:"content"`
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Sender == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sender is required"})
		return
	}
	content, ok := h.decodeContent(w, req.Content)
	if !ok {
		return
	}

	msgs := h.env.Broadcast(req.Sender, content)
	if h.metrics != nil {
		h.metrics.RecordBroadcast()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(msgs),
		"messages": msgs,
	})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.env.Agents()
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, newAgentView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

type createAgentRequest struct {
	Name         string             `json:"name"`
	Demographics agent.Demographics `json:"demographics"`
	Personality  agent.Personality  `json:"personality"`
	Influence    *float64           `json:"influence,omitempty"`
	Focus        string             `json:"focus,omitempty"`
	Beliefs      map[string]float64 `json:"beliefs,omitempty"`
	Values       map[string]float64 `json:"values,omitempty"`
	Capabilities map[string]float64 `json:"capabilities,omitempty"`
	Peers        []string           `json:"peers,omitempty"`
	Reasoner     string             `json:"reasoner,omitempty"`
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	opts := []agent.Option{
		agent.WithNetwork(req.Peers...),
		agent.WithLogger(h.logger),
	}
	if h.store != nil {
		opts = append(opts, agent.WithStore(h.store))
	}
	if h.router != nil {
		opts = append(opts, agent.WithReasoner(h.router.For(req.Name)))
	}
	if req.Focus != "" {
		opts = append(opts, agent.WithFocus(req.Focus))
	}
	if req.Influence != nil {
		opts = append(opts, agent.WithInfluence(*req.Influence))
	}
	if len(req.Beliefs) > 0 {
		opts = append(opts, agent.WithBeliefs(req.Beliefs))
	}
	if len(req.Values) > 0 {
		opts = append(opts, agent.WithValues(req.Values))
	}
	if len(req.Capabilities) > 0 {
		opts = append(opts, agent.WithCapabilities(req.Capabilities))
	}

	a, err := agent.New(req.Name, req.Demographics, req.Personality, opts...)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.router != nil && req.Reasoner != "" {
		h.router.Bind(req.Name, req.Reasoner)
	}

	if err := h.env.RegisterStrict(a); err != nil {
		h.writeError(w, err)
		return
	}

	if h.graph != nil {
		for _, peer := range req.Peers {
			if err := h.graph.Know(r.Context(), a.Name, peer); err != nil {
				h.logger.Warn("graph mirror failed",
					zap.String("agent", a.Name), zap.String("peer", peer), zap.Error(err))
			}
		}
	}
	if h.metrics != nil {
		h.metrics.SetAgents(h.env.Len())
	}

	writeJSON(w, http.StatusCreated, newAgentView(a))
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newAgentView(a))
}

type sendMessageRequest struct {
	Receiver string          `json:"receiver"`
	Content  json.RawMessage `json:"content"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Receiver == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "receiver is required"})
		return
	}
	content, ok := h.decodeContent(w, req.Content)
	if !ok {
		return
	}

	msg := a.SendMessage(req.Receiver, content)
	delivered := h.env.Deliver(msg)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"delivered": delivered,
		"message":   msg,
	})
}

func (h *Handler) socialNetwork(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	depth := queryInt(r, "depth", 2)

	reached := h.env.SocialNetwork(a.Name, depth)
	names := make([]string, 0, len(reached))
	for n := range reached {
		names = append(names, n)
	}
	sort.Strings(names)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":     a.Name,
		"depth":     depth,
		"reachable": names,
	})
}

func (h *Handler) listRelationships(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Relationships.Snapshot())
}

type adjustRelationshipRequest struct {
	Peer  string  `json:"peer"`
	Delta float64 `json:"delta"`
}

func (h *Handler) adjustRelationship(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	var req adjustRelationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Peer == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "peer is required"})
		return
	}

	score := a.UpdateRelationship(req.Peer, req.Delta)

	if h.graph != nil {
		ctx := r.Context()
		if err := h.graph.Know(ctx, a.Name, req.Peer); err != nil {
			h.logger.Warn("graph mirror failed",
				zap.String("agent", a.Name), zap.String("peer", req.Peer), zap.Error(err))
		} else if _, err := h.graph.AdjustScore(ctx, a.Name, req.Peer, req.Delta); err != nil {
			h.logger.Warn("graph adjust failed",
				zap.String("agent", a.Name), zap.String("peer", req.Peer), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peer":  req.Peer,
		"score": score,
	})
}

func (h *Handler) listGoals(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Goals())
}

type setGoalRequest struct {
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

func (h *Handler) setGoal(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	var req setGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := a.SetGoal(req.Description, req.Priority, req.Deadline); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"agent": a.Name,
		"goals": a.Goals(),
	})
}

func (h *Handler) listMemories(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 0)

	records, err := a.RetrieveMemories(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type storeMemoryRequest struct {
	Event      string  `json:"event"`
	Sentiment  float64 `json:"sentiment"`
	Importance float64 `json:"importance"`
}

func (h *Handler) storeMemory(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	var req storeMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id, err := a.StoreMemory(r.Context(), req.Event, req.Sentiment, req.Importance)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordMemoryStored()
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

func (h *Handler) pruneMemories(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	keep := queryInt(r, "keep", memory.DefaultKeepLast)

	removed, err := a.PruneMemories(r.Context(), keep)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordMemoriesPruned(removed)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

type thinkRequest struct {
	Situation string `json:"situation"`
}

func (h *Handler) think(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	var req thinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp, err := a.Think(r.Context(), req.Situation)
	if h.metrics != nil {
		h.metrics.RecordReasoning("think", err)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	if resp == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"attached": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attached": true,
		"thought":  resp.Content,
		"provider": resp.Provider,
		"metadata": resp.Metadata,
	})
}

type decideRequest struct {
	Options   []string `json:"options"`
	Situation string   `json:"situation"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupAgent(w, r)
	if !ok {
		return
	}
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	choice, err := a.Decide(r.Context(), req.Options, req.Situation)
	if h.metrics != nil {
		h.metrics.RecordReasoning("decide", err)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"choice": choice})
}

func (h *Handler) triggerReflection(w http.ResponseWriter, r *http.Request) {
	if h.reflector == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reflector not initialized"})
		return
	}
	fired := h.reflector.FireNow()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "reflection triggered",
		"agents_fired": fired,
		"world_time":   h.clock.Time().Format(time.RFC3339),
	})
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	if h.router == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "provider router not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"default":  h.router.DefaultID(),
		"backends": h.router.IDs(),
	})
}

func (h *Handler) graphReachable(w http.ResponseWriter, r *http.Request) {
	if h.graph == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "social graph not initialized"})
		return
	}
	agentName := r.URL.Query().Get("agent")
	if agentName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agent is required"})
		return
	}
	depth := queryInt(r, "depth", 2)

	reached, err := h.graph.ReachableWithin(r.Context(), agentName, depth)
	if err != nil {
		h.writeError(w, err)
		return
	}
	names := make([]string, 0, len(reached))
	for n := range reached {
		names = append(names, n)
	}
	sort.Strings(names)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":     agentName,
		"depth":     depth,
		"reachable": names,
	})
}

func (h *Handler) archiveRecent(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive not initialized"})
		return
	}
	limit := queryInt(r, "limit", 0)

	var (
		entries []archive.Entry
		err     error
	)
	if agentName := r.URL.Query().Get("agent"); agentName != "" {
		entries, err = h.archive.ForAgent(r.Context(), agentName, limit)
	} else {
		entries, err = h.archive.Recent(r.Context(), limit)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) platformBroadcast(w http.ResponseWriter, r *http.Request) {
	if h.broadcaster == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway not initialized"})
		return
	}
	var msg gateway.BroadcastMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if msg.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type is required"})
		return
	}
	if err := h.broadcaster.Send(r.Context(), &msg); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "broadcast sent"})
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	if h.gw == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.gw.StatusAll())
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event hub not initialized"})
		return
	}
	h.hub.HandleWS(w, r)
}

// lookupAgent resolves the {name} URL parameter, replying 404 when absent.
func (h *Handler) lookupAgent(w http.ResponseWriter, r *http.Request) (*agent.Agent, bool) {
	name := chi.URLParam(r, "name")
	a, ok := h.env.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return nil, false
	}
	return a, true
}

// decodeContent parses a raw JSON payload into message content,
// replying 400 on failure.
func (h *Handler) decodeContent(w http.ResponseWriter, raw json.RawMessage) (message.Content, bool) {
	if len(raw) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return nil, false
	}
	content, err := message.FromJSON(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, false
	}
	return content, true
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var memErr *memory.ValidationError
	var agErr *agent.ValidationError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &memErr), errors.As(err, &agErr), errors.Is(err, agent.ErrNoOptions):
		status = http.StatusBadRequest
	case errors.Is(err, world.ErrDuplicateName):
		status = http.StatusConflict
	case errors.Is(err, memory.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, provider.ErrUnavailable):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
