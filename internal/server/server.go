// Package server hosts the game rooms behind an HTTP and websocket surface.
// Rooms are single-goroutine actors; the HTTP layer only creates them, seats
// players, and hands upgraded websockets over.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lox/eldorado/internal/auth"
	"github.com/lox/eldorado/internal/bot"
	"github.com/lox/eldorado/internal/game"
	"github.com/lox/eldorado/internal/gameid"
	"github.com/lox/eldorado/internal/metrics"
	"github.com/lox/eldorado/internal/stats"
	"github.com/lox/eldorado/internal/store"
)

const maxRequestBody = 1 << 20

// Server is the HTTP and websocket gateway over the room registry.
type Server struct {
	config   *Config
	logger   zerolog.Logger
	registry *Registry
	issuer   *auth.TokenIssuer
	store    store.Store
	writer   *store.Writer
	metrics  *metrics.Metrics
	clock    quartz.Clock
	ids      *gameid.Generator
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	// roomCtx bounds room goroutine lifetimes; set by Run.
	roomCtx context.Context
}

// NewServer wires the gateway. The writer may be nil when persistence is
// disabled; the store must not be.
func NewServer(cfg *Config, st store.Store, writer *store.Writer, issuer *auth.TokenIssuer,
	m *metrics.Metrics, clock quartz.Clock, logger zerolog.Logger) *Server {

	s := &Server{
		config:   cfg,
		logger:   logger.With().Str("component", "server").Logger(),
		registry: NewRegistry(m),
		issuer:   issuer,
		store:    st,
		writer:   writer,
		metrics:  m,
		clock:    clock,
		ids:      gameid.NewGenerator(nil),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		roomCtx: context.Background(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/create-room", s.handleCreateRoom)
	mux.HandleFunc("POST /api/join-by-code", s.handleJoinByCode)
	mux.HandleFunc("POST /api/matchmake", s.handleMatchmake)
	mux.HandleFunc("GET /api/player-stats", s.handlePlayerStats)
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	s.mux = mux
	return s
}

// Handler exposes the routing table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Registry exposes the room index, mainly for tests.
func (s *Server) Registry() *Registry { return s.registry }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully. Rooms
// created while running are bound to ctx as well.
func (s *Server) Run(ctx context.Context) error {
	s.roomCtx = ctx
	httpServer := &http.Server{
		Addr:              s.config.ListenAddress(),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", httpServer.Addr).Msg("listening")
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newRoom creates, registers and starts a room.
func (s *Server) newRoom(cfg game.Config, targetSeats int) (*Room, error) {
	gameID := s.ids.Generate()
	joinCode, err := s.ids.NewJoinCode(s.registry.CodeTaken)
	if err != nil {
		return nil, err
	}

	baseline := bot.NewBaseline()
	var strategy bot.Strategy = baseline
	if s.config.Bots.RemoteURL != "" {
		opts := []bot.RemoteOption{
			bot.WithRemoteTimeout(time.Duration(s.config.Bots.RemoteTimeout) * time.Millisecond),
		}
		if s.metrics != nil {
			opts = append(opts, bot.WithRemoteMetrics(s.metrics.BotFallbacks, s.metrics.BotRemoteLatency))
		}
		if cfg := s.remoteStrategyConfig(); cfg != nil {
			opts = append(opts, bot.WithRemoteConfig(cfg))
		}
		strategy = bot.NewRemote(s.config.Bots.RemoteURL, gameID, baseline, s.logger, opts...)
	}

	room := NewRoom(RoomParams{
		GameID:      gameID,
		JoinCode:    joinCode,
		Config:      cfg,
		TargetSeats: targetSeats,
		TurnTimeout: s.config.TurnTimeout(),
		Writer:      s.writer,
		Store:       s.store,
		Bots:        bot.NewManager(strategy, s.clock, s.logger, s.config.BotDelay()),
		Baseline:    baseline,
		Clock:       s.clock,
		Logger:      s.logger,
		Metrics:     s.metrics,
		Issuer:      s.issuer,
		OnClose:     s.registry.Remove,
	})
	s.registry.Add(room)
	go room.Run(s.roomCtx)
	return room, nil
}

type playerRequest struct {
	DisplayName string `json:"displayName"`
	AvatarSeed  string `json:"avatarSeed"`
	Color       string `json:"color"`
	UserID      string `json:"userId,omitempty"`
}

func (p playerRequest) profile() game.PlayerProfile {
	return game.PlayerProfile{
		DisplayName: p.DisplayName,
		AvatarSeed:  p.AvatarSeed,
		Color:       p.Color,
		UserID:      p.UserID,
	}
}

type createRoomRequest struct {
	playerRequest
	MinPlayers int    `json:"minPlayers,omitempty"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
	RoundCount int    `json:"roundCount,omitempty"`
	Seed       string `json:"seed,omitempty"`
}

type createRoomResponse struct {
	GameID      string `json:"gameId"`
	JoinCode    string `json:"joinCode"`
	PlayerToken string `json:"playerToken"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.DisplayName == "" {
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "displayName is required")
		return
	}

	defaults := s.config.Rooms
	if req.MinPlayers == 0 {
		req.MinPlayers = defaults.MinPlayers
	}
	if req.MaxPlayers == 0 {
		req.MaxPlayers = defaults.MaxPlayers
	}
	if req.RoundCount == 0 {
		req.RoundCount = defaults.RoundCount
	}
	if req.MinPlayers < 2 || req.MaxPlayers < req.MinPlayers || req.MaxPlayers > defaults.MaxPlayers {
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid player limits")
		return
	}
	if req.RoundCount < 1 {
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid round count")
		return
	}
	seed := req.Seed
	if seed == "" {
		seed = s.ids.Generate()
	}

	room, err := s.newRoom(game.Config{
		SessionSeed: seed,
		RoundCount:  req.RoundCount,
		MinPlayers:  req.MinPlayers,
		MaxPlayers:  req.MaxPlayers,
	}, req.MaxPlayers)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, ErrCodeInternal, "could not create room")
		return
	}

	_, token, err := s.seatHuman(room, req.profile())
	if err != nil {
		s.writeSeatError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createRoomResponse{
		GameID:      room.GameID,
		JoinCode:    room.JoinCode,
		PlayerToken: token,
	})
}

type joinByCodeRequest struct {
	playerRequest
	JoinCode  string `json:"joinCode"`
	Spectator bool   `json:"spectator,omitempty"`
}

type joinResponse struct {
	GameID      string `json:"gameId"`
	PlayerToken string `json:"playerToken"`
}

func (s *Server) handleJoinByCode(w http.ResponseWriter, r *http.Request) {
	var req joinByCodeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.DisplayName == "" || req.JoinCode == "" {
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "displayName and joinCode are required")
		return
	}

	room := s.registry.ByCode(req.JoinCode)
	if room == nil {
		s.writeError(w, http.StatusNotFound, ErrCodeRoomNotFound, "no room with that code")
		return
	}

	var token string
	var err error
	if req.Spectator {
		token, err = s.seatSpectator(room, req.profile())
	} else {
		_, token, err = s.seatHuman(room, req.profile())
	}
	if err != nil {
		s.writeSeatError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, joinResponse{GameID: room.GameID, PlayerToken: token})
}

// handleMatchmake drops the caller into a fresh matchmake-sized room and
// fills the remaining seats with bots, which starts the game immediately.
func (s *Server) handleMatchmake(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.DisplayName == "" {
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "displayName is required")
		return
	}

	target := s.config.Rooms.MatchmakeSize
	room, err := s.newRoom(game.Config{
		SessionSeed: s.ids.Generate(),
		RoundCount:  s.config.Rooms.RoundCount,
		MinPlayers:  s.config.Rooms.MinPlayers,
		MaxPlayers:  target,
	}, target)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, ErrCodeInternal, "could not create room")
		return
	}

	_, token, err := s.seatHuman(room, req.profile())
	if err != nil {
		s.writeSeatError(w, err)
		return
	}
	for n := 1; n < target; n++ {
		botID := bot.PlayerID(room.GameID, n)
		if _, err := room.Seat(botID, bot.Profile(n), true, false); err != nil {
			s.logger.Error().Err(err).Str("game_id", room.GameID).Msg("failed to seat bot")
		}
	}
	s.writeJSON(w, http.StatusCreated, joinResponse{GameID: room.GameID, PlayerToken: token})
}

type playerStatsResponse struct {
	UserID   string          `json:"userId"`
	Lifetime *stats.Lifetime `json:"lifetime"`
}

func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "userId is required")
		return
	}

	lifetime, err := s.store.PlayerLifetime(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, ErrCodePlayerNotFound, "no stats for that player")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrCodeDBNotReady, "stats are unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, playerStatsResponse{UserID: userID, Lifetime: lifetime})
}

// remoteStrategyConfig builds the opaque config object forwarded to the
// remote strategy, nil when nothing is configured.
func (s *Server) remoteStrategyConfig() map[string]any {
	bots := s.config.Bots
	if bots.StrategyType == "" && bots.StrategyParams == "" {
		return nil
	}
	cfg := make(map[string]any)
	if bots.StrategyType != "" {
		cfg["strategyType"] = bots.StrategyType
	}
	if bots.StrategyParams != "" {
		var params map[string]any
		if err := json.Unmarshal([]byte(bots.StrategyParams), &params); err != nil {
			s.logger.Warn().Err(err).Msg("strategy params are not valid JSON, forwarding as string")
			cfg["params"] = bots.StrategyParams
		} else {
			cfg["params"] = params
		}
	}
	return cfg
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrCodeDBNotReady, "storage is unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "token is required")
		return
	}
	identity, err := s.issuer.Verify(token)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid token")
		return
	}

	room := s.registry.Get(identity.GameID)
	if room == nil {
		s.writeError(w, http.StatusNotFound, ErrCodeRoomNotFound, "game not found")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	NewConnection(ws, room, *identity, token, s.logger).Start()
}

// seatHuman seats a new human player and issues their token.
func (s *Server) seatHuman(room *Room, profile game.PlayerProfile) (string, string, error) {
	playerID := s.ids.Generate()
	seatIndex, err := room.Seat(playerID, profile, false, false)
	if err != nil {
		return "", "", err
	}
	token, err := s.issuer.Issue(auth.Identity{
		PlayerID:  playerID,
		GameID:    room.GameID,
		SeatIndex: &seatIndex,
	})
	if err != nil {
		return "", "", err
	}
	return playerID, token, nil
}

// seatSpectator registers a spectator, who may join at any phase, and issues
// a token with no seat.
func (s *Server) seatSpectator(room *Room, profile game.PlayerProfile) (string, error) {
	playerID := s.ids.Generate()
	if _, err := room.Seat(playerID, profile, false, true); err != nil {
		return "", err
	}
	return s.issuer.Issue(auth.Identity{
		PlayerID:    playerID,
		GameID:      room.GameID,
		IsSpectator: true,
	})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidJSON, "could not parse request body")
		return false
	}
	return true
}

func (s *Server) writeSeatError(w http.ResponseWriter, err error) {
	var ee *game.EngineError
	if errors.As(err, &ee) {
		// A seat request only fails with ROUND_NOT_READY when the room is
		// full or underway; either way there is no seat to give out.
		code := ErrCodeInvalidInput
		if ee.Code == game.ErrCodeRoundNotReady {
			code = ErrCodeRoomFull
		}
		s.writeError(w, http.StatusConflict, code, ee.Message)
		return
	}
	s.writeError(w, http.StatusInternalServerError, ErrCodeInternal, "could not join room")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
