package server

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/eldorado/internal/auth"
	"github.com/lox/eldorado/internal/bot"
	"github.com/lox/eldorado/internal/deck"
	"github.com/lox/eldorado/internal/game"
	"github.com/lox/eldorado/internal/metrics"
	"github.com/lox/eldorado/internal/protocol"
	"github.com/lox/eldorado/internal/stats"
	"github.com/lox/eldorado/internal/store"
)

const (
	commandQueueSize = 64
	nextRoundDelay   = 3 * time.Second
	finalizeTimeout  = 10 * time.Second
)

// Command kinds double as metrics labels.
const (
	cmdAttach        = "attach"
	cmdDetach        = "detach"
	cmdSeat          = "seat"
	cmdBid           = "bid"
	cmdPlay          = "play"
	cmdRequestState  = "request_state"
	cmdUpdateProfile = "update_profile"
	cmdTurnTimeout   = "turn_timeout"
	cmdNextRound     = "next_round"
	cmdSnapshot      = "snapshot"
)

type roomCommand struct {
	kind     string
	playerID string
	conn     *Connection
	bid      int
	cardID   string
	profile  *protocol.UpdateProfile
	seat     *seatRequest
	snapshot chan snapshotResult
	gen      int
	round    int
}

type seatRequest struct {
	profile   game.PlayerProfile
	isBot     bool
	spectator bool
	reply     chan seatResult
}

type seatResult struct {
	seatIndex int
	err       error
}

type snapshotResult struct {
	state *game.GameState
	log   []game.Event
}

// RoomParams collects the dependencies a room needs.
type RoomParams struct {
	GameID      string
	JoinCode    string
	Config      game.Config
	TargetSeats int
	TurnTimeout time.Duration
	Writer      *store.Writer
	Store       store.Store
	Bots        *bot.Manager
	Baseline    bot.Strategy
	Clock       quartz.Clock
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	Issuer      *auth.TokenIssuer
	OnClose     func(gameID string)
}

// Room owns one game. All state transitions happen on the Run goroutine;
// everything else talks to the room through its command channel, so commands
// are applied in a single total order.
type Room struct {
	GameID   string
	JoinCode string

	state *game.GameState
	log   []game.Event
	conns map[*Connection]struct{}

	commands chan roomCommand
	done     chan struct{}

	writer   *store.Writer
	store    store.Store
	bots     *bot.Manager
	baseline bot.Strategy
	clock    quartz.Clock
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	issuer   *auth.TokenIssuer
	onClose  func(gameID string)

	turnTimeout time.Duration
	targetSeats int

	// turnGen invalidates stale timeout callbacks; bumped on every commit.
	turnGen   int
	lastActor string
	graceUsed bool
	halted    bool
	closed    bool
}

// NewRoom creates a room in the lobby phase and commits its creation event.
// Run must be started before any command is posted.
func NewRoom(p RoomParams) *Room {
	r := &Room{
		GameID:      p.GameID,
		JoinCode:    p.JoinCode,
		conns:       make(map[*Connection]struct{}),
		commands:    make(chan roomCommand, commandQueueSize),
		done:        make(chan struct{}),
		writer:      p.Writer,
		store:       p.Store,
		bots:        p.Bots,
		baseline:    p.Baseline,
		clock:       p.Clock,
		logger:      p.Logger.With().Str("component", "room").Str("game_id", p.GameID).Logger(),
		metrics:     p.Metrics,
		issuer:      p.Issuer,
		onClose:     p.OnClose,
		turnTimeout: p.TurnTimeout,
		targetSeats: p.TargetSeats,
	}
	state, events := game.CreateGame(p.GameID, p.Config)
	r.state = state
	r.commit(events)
	return r
}

// Run processes commands until ctx is cancelled. A panic while handling a
// command halts the room rather than crashing the process; a halted room
// answers everything with INTERNAL_ERROR.
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case cmd := <-r.commands:
			r.handle(cmd)
		case <-ctx.Done():
			return
		}
	}
}

// post enqueues a command, reporting false once the room has shut down.
func (r *Room) post(cmd roomCommand) bool {
	select {
	case r.commands <- cmd:
		return true
	case <-r.done:
		return false
	}
}

// PostBid implements bot.CommandPoster.
func (r *Room) PostBid(playerID string, value int) {
	r.post(roomCommand{kind: cmdBid, playerID: playerID, bid: value})
}

// PostPlay implements bot.CommandPoster.
func (r *Room) PostPlay(playerID, cardID string) {
	r.post(roomCommand{kind: cmdPlay, playerID: playerID, cardID: cardID})
}

// Seat adds a player (or spectator) to the game and returns their seat index.
// Called from HTTP handlers; blocks until the room has processed the request.
func (r *Room) Seat(playerID string, profile game.PlayerProfile, isBot, spectator bool) (int, error) {
	reply := make(chan seatResult, 1)
	ok := r.post(roomCommand{kind: cmdSeat, playerID: playerID, seat: &seatRequest{
		profile:   profile,
		isBot:     isBot,
		spectator: spectator,
		reply:     reply,
	}})
	if !ok {
		return 0, errors.New("room is closed")
	}
	res := <-reply
	return res.seatIndex, res.err
}

// Snapshot returns a deep copy of the current state and log. Test and
// diagnostic use; ordered with every other command.
func (r *Room) Snapshot() (*game.GameState, []game.Event) {
	reply := make(chan snapshotResult, 1)
	if !r.post(roomCommand{kind: cmdSnapshot, snapshot: reply}) {
		return nil, nil
	}
	res := <-reply
	return res.state, res.log
}

func (r *Room) handle(cmd roomCommand) {
	defer func() {
		if p := recover(); p != nil {
			r.halted = true
			r.logger.Error().Interface("panic", p).Str("command", cmd.kind).Msg("room halted")
			for conn := range r.conns {
				conn.SendError(ErrCodeInternal, "room halted")
			}
		}
	}()

	if r.metrics != nil {
		r.metrics.CommandsProcessed.WithLabelValues(cmd.kind).Inc()
	}

	if r.halted {
		r.handleHalted(cmd)
		return
	}

	switch cmd.kind {
	case cmdAttach:
		r.handleAttach(cmd.conn)
	case cmdDetach:
		r.handleDetach(cmd.conn)
	case cmdSeat:
		r.handleSeat(cmd.playerID, cmd.seat)
	case cmdBid:
		r.applyBid(cmd.playerID, cmd.bid, cmd.conn)
	case cmdPlay:
		r.applyPlay(cmd.playerID, cmd.cardID, cmd.conn)
	case cmdRequestState:
		r.handleRequestState(cmd.conn)
	case cmdUpdateProfile:
		r.handleUpdateProfile(cmd.playerID, cmd.profile, cmd.conn)
	case cmdTurnTimeout:
		r.handleTurnTimeout(cmd.gen)
	case cmdNextRound:
		r.handleNextRound(cmd.round)
	case cmdSnapshot:
		cmd.snapshot <- snapshotResult{state: r.state.Clone(), log: append([]game.Event(nil), r.log...)}
	default:
		r.logger.Warn().Str("command", cmd.kind).Msg("unknown command")
	}
}

// handleHalted keeps a broken room answering without touching state. Clients
// can still detach; everything else is refused.
func (r *Room) handleHalted(cmd roomCommand) {
	switch cmd.kind {
	case cmdDetach:
		r.handleDetach(cmd.conn)
	case cmdSeat:
		cmd.seat.reply <- seatResult{err: errors.New("room halted")}
	case cmdSnapshot:
		cmd.snapshot <- snapshotResult{state: r.state.Clone(), log: append([]game.Event(nil), r.log...)}
	default:
		if cmd.conn != nil {
			cmd.conn.SendError(ErrCodeInternal, "room halted")
		}
	}
}

func (r *Room) handleAttach(conn *Connection) {
	r.conns[conn] = struct{}{}
	if r.metrics != nil {
		r.metrics.ActiveConnections.Inc()
	}

	playerID := conn.identity.PlayerID
	if p := r.state.FindPlayer(playerID); p != nil && p.Status != game.StatusActive {
		r.state = game.SetPlayerStatus(r.state, playerID, game.StatusActive)
	}

	conn.Send(&protocol.Welcome{
		PlayerID:    playerID,
		GameID:      r.GameID,
		SeatIndex:   conn.identity.SeatIndex,
		IsSpectator: conn.identity.IsSpectator,
	})
	conn.Send(&protocol.StateFull{State: game.ViewFor(r.state, playerID)})
	r.maybeRefreshToken(conn)
}

func (r *Room) handleDetach(conn *Connection) {
	if _, ok := r.conns[conn]; !ok {
		return
	}
	delete(r.conns, conn)
	if r.metrics != nil {
		r.metrics.ActiveConnections.Dec()
	}

	playerID := conn.identity.PlayerID
	stillHere := false
	for other := range r.conns {
		if other.identity.PlayerID == playerID {
			stillHere = true
			break
		}
	}
	if !stillHere {
		r.state = game.SetPlayerStatus(r.state, playerID, game.StatusDisconnected)
	}

	if len(r.conns) == 0 && (r.state.Phase == game.PhaseCompleted || r.halted) {
		r.close()
	}
}

func (r *Room) close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.onClose != nil {
		go r.onClose(r.GameID)
	}
}

func (r *Room) handleSeat(playerID string, req *seatRequest) {
	ns, events, err := game.AddPlayer(r.state, playerID, req.profile, req.isBot, req.spectator)
	if err != nil {
		req.reply <- seatResult{err: err}
		return
	}
	r.state = ns
	r.commit(events)

	seatIndex := -1
	if p := r.state.FindPlayer(playerID); p != nil {
		seatIndex = p.SeatIndex
	}
	req.reply <- seatResult{seatIndex: seatIndex}

	if !req.spectator && r.state.Phase == game.PhaseLobby &&
		len(r.state.ActivePlayers()) >= r.targetSeats {
		r.startRound()
	}
}

func (r *Room) startRound() {
	ns, events, err := game.StartRound(r.state)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to start round")
		return
	}
	r.state = ns
	r.commit(events)
	r.afterCommit()
}

func (r *Room) applyBid(playerID string, bid int, conn *Connection) {
	ns, events, err := game.ApplyBid(r.state, playerID, bid)
	if err != nil {
		r.reject(conn, playerID, "BID", err)
		return
	}
	r.state = ns
	r.commit(events)
	r.afterCommit()
}

func (r *Room) applyPlay(playerID, cardID string, conn *Connection) {
	ns, events, err := game.PlayCard(r.state, playerID, cardID)
	if err != nil {
		r.reject(conn, playerID, "PLAY_CARD", err)
		return
	}
	r.state = ns
	r.commit(events)
	r.afterCommit()
}

// reject routes an engine rejection. Player-originated misplays go into the
// log as INVALID_ACTION; rejections of internally generated commands (stale
// bot decisions, timeout plays) are only logged.
func (r *Room) reject(conn *Connection, playerID, action string, err error) {
	var ee *game.EngineError
	if !errors.As(err, &ee) {
		r.logger.Error().Err(err).Str("player_id", playerID).Msg("unexpected engine failure")
		if conn != nil {
			conn.SendError(ErrCodeInternal, "internal error")
		}
		return
	}

	if r.metrics != nil {
		r.metrics.EngineRejections.WithLabelValues(ee.Code).Inc()
	}
	if conn == nil {
		r.logger.Warn().
			Str("player_id", playerID).
			Str("code", ee.Code).
			Str("action", action).
			Msg("internal command rejected")
		return
	}

	r.commit([]game.Event{game.NewInvalidAction(r.GameID, playerID, action, ee.Code, ee.Message)})
	conn.SendError(ee.Code, ee.Message)
}

func (r *Room) handleRequestState(conn *Connection) {
	if conn == nil {
		return
	}
	conn.Send(&protocol.StateFull{State: game.ViewFor(r.state, conn.identity.PlayerID)})
	r.maybeRefreshToken(conn)
}

func (r *Room) handleUpdateProfile(playerID string, req *protocol.UpdateProfile, conn *Connection) {
	p := r.state.FindPlayer(playerID)
	if p == nil {
		if conn != nil {
			conn.SendError(ErrCodePlayerNotFound, "not in this game")
		}
		return
	}

	profile := p.Profile
	if req.DisplayName != nil {
		profile.DisplayName = *req.DisplayName
	}
	if req.AvatarSeed != nil {
		profile.AvatarSeed = *req.AvatarSeed
	}
	if req.Color != nil {
		profile.Color = *req.Color
	}

	ns, err := game.UpdateProfile(r.state, playerID, profile)
	if err != nil {
		r.reject(conn, playerID, "UPDATE_PROFILE", err)
		return
	}
	r.state = ns
	r.broadcastState()
}

func (r *Room) maybeRefreshToken(conn *Connection) {
	if r.issuer == nil || conn.token == "" || !r.issuer.NeedsRefresh(conn.token) {
		return
	}
	token, err := r.issuer.Issue(conn.identity)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to refresh token")
		return
	}
	conn.token = token
	conn.Send(&protocol.TokenRefresh{GameID: r.GameID, Token: token})
}

// commit stamps events into the log, hands them to the persistence writer,
// and broadcasts them. This is the only place events enter the log.
func (r *Room) commit(events []game.Event) {
	if len(events) == 0 {
		return
	}
	now := r.clock.Now().UnixMilli()
	stamped := make([]game.Event, 0, len(events))
	for _, ev := range events {
		ev.EventIndex = len(r.log)
		ev.Timestamp = now
		r.log = append(r.log, ev)
		stamped = append(stamped, ev)
	}
	if r.writer != nil {
		r.writer.Enqueue(r.GameID, stamped)
	}
	for _, ev := range stamped {
		r.broadcastEvent(ev)
	}
}

func (r *Room) broadcastEvent(ev game.Event) {
	// Deal events carry every hand; each client sees only its own.
	if ev.Type == game.EventCardsDealt {
		for conn := range r.conns {
			conn.Send(&protocol.GameEvent{Event: redactDeal(ev, conn.identity.PlayerID)})
		}
		return
	}
	frame := &protocol.GameEvent{Event: ev}
	for conn := range r.conns {
		conn.Send(frame)
	}
}

func redactDeal(ev game.Event, viewerID string) game.Event {
	payload, ok := game.PayloadAs[game.CardsDealtPayload](ev)
	if !ok {
		return ev
	}
	hands := make(map[string][]deck.Card, 1)
	if hand, ok := payload.Hands[viewerID]; ok {
		hands[viewerID] = append([]deck.Card(nil), hand...)
	}
	ev.Payload = &game.CardsDealtPayload{Hands: hands}
	return ev
}

func (r *Room) broadcastState() {
	for conn := range r.conns {
		conn.Send(&protocol.StateFull{State: game.ViewFor(r.state, conn.identity.PlayerID)})
	}
}

// afterCommit drives whatever the new phase needs: waking the next actor,
// scheduling the next round, or finalizing the game.
func (r *Room) afterCommit() {
	r.turnGen++

	switch r.state.Phase {
	case game.PhaseBidding, game.PhasePlaying:
		actor := r.expectedActor()
		if actor == "" {
			return
		}
		if actor != r.lastActor {
			r.lastActor = actor
			r.graceUsed = false
		}
		if p := r.state.FindPlayer(actor); p != nil && p.IsBot {
			r.bots.Wake(r, r.state.Clone(), actor)
		}
		// The timer covers humans and doubles as a backstop for bots whose
		// decision never arrived.
		r.startTurnTimer()

	case game.PhaseScoring:
		round := r.state.RoundState.RoundIndex
		r.clock.AfterFunc(nextRoundDelay, func() {
			r.post(roomCommand{kind: cmdNextRound, round: round})
		})

	case game.PhaseCompleted:
		r.finalize()
	}
}

// expectedActor resolves who the room is waiting on. During play that is the
// engine's expected player; during bidding, seats bid in order starting left
// of the dealer.
func (r *Room) expectedActor() string {
	s := r.state
	switch s.Phase {
	case game.PhasePlaying:
		return game.ExpectedPlayer(s)
	case game.PhaseBidding:
		if s.RoundState == nil {
			return ""
		}
		order := s.ActivePlayers()
		if len(order) == 0 {
			return ""
		}
		start := 0
		for i, id := range order {
			if id == s.RoundState.StartingPlayerID {
				start = i
				break
			}
		}
		for i := 0; i < len(order); i++ {
			id := order[(start+i)%len(order)]
			if s.RoundState.Bids[id] == nil {
				return id
			}
		}
	}
	return ""
}

func (r *Room) startTurnTimer() {
	gen := r.turnGen
	r.clock.AfterFunc(r.turnTimeout, func() {
		r.post(roomCommand{kind: cmdTurnTimeout, gen: gen})
	})
}

// handleTurnTimeout fires when the expected actor has not moved. Connected
// humans get one grace period; after that, or immediately for disconnected
// players and stuck bots, the baseline strategy acts for them.
func (r *Room) handleTurnTimeout(gen int) {
	if gen != r.turnGen {
		return
	}
	actor := r.expectedActor()
	if actor == "" {
		return
	}
	p := r.state.FindPlayer(actor)
	if p == nil {
		return
	}

	if !p.IsBot && p.Status == game.StatusActive && !r.graceUsed {
		r.graceUsed = true
		r.startTurnTimer()
		return
	}

	r.logger.Info().Str("player_id", actor).Str("phase", string(r.state.Phase)).
		Msg("turn timed out, acting for player")
	r.actWithBaseline(actor)
}

func (r *Room) actWithBaseline(playerID string) {
	ps := r.state.PlayerStates[playerID]
	if ps == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bc := bot.SnapshotContext(r.state, playerID)

	switch r.state.Phase {
	case game.PhaseBidding:
		bid, err := r.baseline.Bid(ctx, ps.Hand, bc)
		if err != nil {
			r.logger.Error().Err(err).Str("player_id", playerID).Msg("baseline bid failed")
			return
		}
		r.applyBid(playerID, bid, nil)
	case game.PhasePlaying:
		card, err := r.baseline.PlayCard(ctx, ps.Hand, bc)
		if err != nil {
			r.logger.Error().Err(err).Str("player_id", playerID).Msg("baseline play failed")
			return
		}
		r.applyPlay(playerID, card.ID, nil)
	}
}

func (r *Room) handleNextRound(round int) {
	if r.state.Phase != game.PhaseScoring {
		return
	}
	if r.state.RoundState == nil || r.state.RoundState.RoundIndex != round {
		return
	}
	r.startRound()
}

// finalize rolls the finished game into the stats store. Storage runs off the
// room goroutine; the game is over and nothing here feeds back into play.
func (r *Room) finalize() {
	summary, err := stats.Finalize(r.state, r.log)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to summarize game")
		return
	}
	r.logger.Info().Int("rounds", summary.RoundCount).Msg("game complete")

	if r.store == nil {
		return
	}
	st := r.store
	logger := r.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		defer cancel()
		if err := st.FinalizeGame(ctx, summary); err != nil {
			logger.Error().Err(err).Msg("failed to persist game summary")
		}
		for _, line := range summary.Players {
			if line.UserID == "" {
				continue
			}
			if err := st.UpdatePlayerLifetime(ctx, line.UserID, line); err != nil {
				logger.Error().Err(err).Str("user_id", line.UserID).Msg("failed to update lifetime stats")
			}
		}
	}()
}
