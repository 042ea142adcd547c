package game

import (
	"strconv"

	"github.com/lox/eldorado/internal/deck"
	"github.com/lox/eldorado/internal/randutil"
)

// CreateGame builds a fresh lobby-phase game and its GAME_CREATED event.
func CreateGame(gameID string, cfg Config) (*GameState, []Event) {
	if cfg.RoundCount <= 0 {
		cfg.RoundCount = DefaultRoundCount
	}
	s := &GameState{
		GameID:           gameID,
		Config:           cfg,
		Phase:            PhaseLobby,
		PlayerStates:     make(map[string]*PlayerState),
		CumulativeScores: make(map[string]int),
	}
	return s, []Event{newEvent(gameID, EventGameCreated, GameCreatedPayload{Config: cfg})}
}

// AddPlayer seats a player (or registers a spectator) and emits
// PLAYER_JOINED. Seats can only be taken in the lobby; spectators may join at
// any phase. The seat index is assigned here and is stable thereafter.
func AddPlayer(s *GameState, playerID string, profile PlayerProfile, isBot, spectator bool) (*GameState, []Event, error) {
	if s.FindPlayer(playerID) != nil {
		return nil, nil, engineErr(ErrCodeInvalidPlay, "player %s already in game", playerID)
	}

	ns := s.Clone()
	p := PlayerInGame{
		PlayerID:  playerID,
		SeatIndex: -1,
		Profile:   profile,
		Status:    StatusActive,
		IsBot:     isBot,
		Spectator: spectator,
	}
	if !spectator {
		if s.Phase != PhaseLobby {
			return nil, nil, engineErr(ErrCodeRoundNotReady, "game already started")
		}
		seats := len(s.ActivePlayers())
		if seats >= s.Config.MaxPlayers {
			return nil, nil, engineErr(ErrCodeRoundNotReady, "game is full")
		}
		p.SeatIndex = seats
		ns.PlayerStates[playerID] = &PlayerState{PlayerID: playerID}
		ns.CumulativeScores[playerID] = 0
	}
	ns.Players = append(ns.Players, p)

	return ns, []Event{newEvent(s.GameID, EventPlayerJoined, PlayerJoinedPayload{Player: p})}, nil
}

// UpdateProfile replaces a player's presentation profile. Profiles are view
// data, not game history, so no event is emitted.
func UpdateProfile(s *GameState, playerID string, profile PlayerProfile) (*GameState, error) {
	if s.FindPlayer(playerID) == nil {
		return nil, engineErr(ErrCodeInvalidPlay, "unknown player %s", playerID)
	}
	ns := s.Clone()
	ns.FindPlayer(playerID).Profile = profile
	return ns, nil
}

// SetPlayerStatus records connection status for a seat. Seats survive
// disconnects; status only influences timeout policy and views.
func SetPlayerStatus(s *GameState, playerID string, status PlayerStatus) *GameState {
	if s.FindPlayer(playerID) == nil {
		return s
	}
	ns := s.Clone()
	ns.FindPlayer(playerID).Status = status
	return ns
}

// StartRound advances to the next round: rotates the dealer, builds and
// shuffles the merged deck from the round seed, deals in seat order, reveals
// the trump card, and opens bidding.
func StartRound(s *GameState) (*GameState, []Event, error) {
	if s.Phase != PhaseLobby && s.Phase != PhaseScoring {
		return nil, nil, engineErr(ErrCodeRoundNotReady, "cannot start a round in phase %s", s.Phase)
	}
	order := s.ActivePlayers()
	if len(order) < s.Config.MinPlayers {
		return nil, nil, engineErr(ErrCodeRoundNotReady, "need %d players, have %d", s.Config.MinPlayers, len(order))
	}

	roundIndex := 0
	if s.RoundState != nil {
		roundIndex = s.RoundState.RoundIndex + 1
	}
	n := len(order)
	dealer := order[roundIndex%n]
	starter := order[(roundIndex+1)%n]
	cards := CardsForRound(s.Config.RoundCount, roundIndex)
	roundSeed := s.Config.SessionSeed + ":" + strconv.Itoa(roundIndex)

	shuffled := deck.BuildShuffled(deck.DecksNeeded(cards, n), roundSeed)

	ns := s.Clone()
	round := &RoundState{
		RoundIndex:       roundIndex,
		CardsPerPlayer:   cards,
		RoundSeed:        roundSeed,
		Bids:             make(map[string]*int, n),
		DealerPlayerID:   dealer,
		StartingPlayerID: starter,
	}

	hands := make(map[string][]deck.Card, n)
	next := 0
	for _, id := range order {
		hand := append([]deck.Card(nil), shuffled[next:next+cards]...)
		next += cards
		hands[id] = hand
		ps := ns.PlayerStates[id]
		ps.Hand = append([]deck.Card(nil), hand...)
		ps.TricksWon = 0
		ps.Bid = nil
		ps.RoundScoreDelta = 0
		round.Bids[id] = nil
	}

	if next < len(shuffled) {
		trump := shuffled[next]
		round.TrumpCard = &trump
		round.TrumpSuit = trump.Suit
	}

	ns.RoundState = round
	ns.Phase = PhaseBidding

	events := []Event{
		newEvent(s.GameID, EventRoundStarted, RoundStartedPayload{
			RoundIndex:       roundIndex,
			CardsPerPlayer:   cards,
			RoundSeed:        roundSeed,
			DealerPlayerID:   dealer,
			StartingPlayerID: starter,
		}),
		newEvent(s.GameID, EventCardsDealt, CardsDealtPayload{Hands: hands}),
		newEvent(s.GameID, EventTrumpRevealed, TrumpRevealedPayload{
			TrumpCard: round.TrumpCard,
			TrumpSuit: round.TrumpSuit,
		}),
	}
	return ns, events, nil
}

// ApplyBid records a bid. The dealer bids under the hook rule: when every
// other bid is in, the dealer may not bid so that total bids equal the
// number of tricks.
func ApplyBid(s *GameState, playerID string, bid int) (*GameState, []Event, error) {
	if s.Phase != PhaseBidding || s.RoundState == nil {
		return nil, nil, engineErr(ErrCodeRoundNotReady, "bidding is not open")
	}
	round := s.RoundState

	existing, inRound := round.Bids[playerID]
	if !inRound {
		return nil, nil, engineErr(ErrCodeInvalidBid, "player %s is not bidding this round", playerID)
	}
	if existing != nil {
		return nil, nil, engineErr(ErrCodeInvalidBid, "player %s already bid", playerID)
	}
	if bid < 0 || bid > round.CardsPerPlayer {
		return nil, nil, engineErr(ErrCodeInvalidBid, "bid %d out of range 0..%d", bid, round.CardsPerPlayer)
	}

	if playerID == round.DealerPlayerID {
		sum := 0
		othersSet := true
		for id, b := range round.Bids {
			if id == playerID {
				continue
			}
			if b == nil {
				othersSet = false
				break
			}
			sum += *b
		}
		if othersSet && sum+bid == round.CardsPerPlayer {
			return nil, nil, engineErr(ErrCodeHookViolation,
				"dealer cannot bid %d: total bids would equal %d tricks", bid, round.CardsPerPlayer)
		}
	}

	ns := s.Clone()
	nr := ns.RoundState
	b := bid
	nr.Bids[playerID] = &b
	ns.PlayerStates[playerID].Bid = &b

	events := []Event{newEvent(s.GameID, EventPlayerBid, PlayerBidPayload{PlayerID: playerID, Bid: bid})}

	allSet := true
	for _, v := range nr.Bids {
		if v == nil {
			allSet = false
			break
		}
	}
	if allSet {
		nr.BiddingComplete = true
		ns.Phase = PhasePlaying
		final := make(map[string]int, len(nr.Bids))
		for id, v := range nr.Bids {
			final[id] = *v
		}
		events = append(events, newEvent(s.GameID, EventBiddingComplete, BiddingCompletePayload{Bids: final}))
	}
	return ns, events, nil
}

// trickLeader resolves who leads the current or next trick: the in-progress
// trick's leader, else the winner of the last completed trick, else the
// round's starting player.
func trickLeader(round *RoundState, order []string) string {
	if round.TrickInProgress != nil && round.TrickInProgress.LeaderPlayerID != "" {
		return round.TrickInProgress.LeaderPlayerID
	}
	if n := len(round.CompletedTricks); n > 0 {
		return round.CompletedTricks[n-1].WinningPlayerID
	}
	if round.StartingPlayerID != "" {
		return round.StartingPlayerID
	}
	if len(order) > 0 {
		return order[0]
	}
	return ""
}

// ExpectedPlayer returns whose turn it is to play, or "" outside the play
// phase. The expected seat is the leader's seat advanced by the number of
// plays already in the trick.
func ExpectedPlayer(s *GameState) string {
	if s.Phase != PhasePlaying || s.RoundState == nil {
		return ""
	}
	order := s.ActivePlayers()
	if len(order) == 0 {
		return ""
	}
	round := s.RoundState
	leader := trickLeader(round, order)
	plays := 0
	if round.TrickInProgress != nil {
		plays = len(round.TrickInProgress.Plays)
	}
	leaderIdx := -1
	for i, id := range order {
		if id == leader {
			leaderIdx = i
			break
		}
	}
	if leaderIdx < 0 {
		return ""
	}
	return order[(leaderIdx+plays)%len(order)]
}

func handContains(hand []deck.Card, suit deck.Suit) bool {
	for _, c := range hand {
		if c.Suit == suit {
			return true
		}
	}
	return false
}

func handOnly(hand []deck.Card, suit deck.Suit) bool {
	for _, c := range hand {
		if c.Suit != suit {
			return false
		}
	}
	return len(hand) > 0
}

// PlayCard plays a card for the player. Legality is checked in order: turn,
// ownership, follow-suit, trump-lead restriction. When the play fills the
// trick the engine resolves it immediately, and when the last trick resolves
// it scores the round, all within this one operation.
func PlayCard(s *GameState, playerID, cardID string) (*GameState, []Event, error) {
	if s.Phase != PhasePlaying || s.RoundState == nil || !s.RoundState.BiddingComplete {
		return nil, nil, engineErr(ErrCodeRoundNotReady, "play is not open")
	}
	if expected := ExpectedPlayer(s); expected != playerID {
		return nil, nil, engineErr(ErrCodeNotPlayersTurn, "it is %s's turn", expected)
	}

	ps, ok := s.PlayerStates[playerID]
	if !ok {
		return nil, nil, engineErr(ErrCodeInvalidPlay, "unknown player %s", playerID)
	}
	var card *deck.Card
	for i := range ps.Hand {
		if ps.Hand[i].ID == cardID {
			card = &ps.Hand[i]
			break
		}
	}
	if card == nil {
		return nil, nil, engineErr(ErrCodeCardNotInHand, "card %s is not in hand", cardID)
	}

	round := s.RoundState
	trick := round.TrickInProgress
	newTrick := trick == nil || len(trick.Plays) == 0

	if !newTrick && trick.LedSuit != "" && card.Suit != trick.LedSuit && handContains(ps.Hand, trick.LedSuit) {
		return nil, nil, engineErr(ErrCodeMustFollowSuit, "must follow %s", trick.LedSuit)
	}
	if newTrick && round.TrumpSuit != "" && !round.TrumpBroken &&
		card.Suit == round.TrumpSuit && !handOnly(ps.Hand, round.TrumpSuit) {
		return nil, nil, engineErr(ErrCodeCannotLeadTrump, "trump has not been broken")
	}

	ns := s.Clone()
	nr := ns.RoundState
	nps := ns.PlayerStates[playerID]
	played := *card

	var events []Event

	if nr.TrickInProgress == nil {
		nr.TrickInProgress = &TrickState{
			TrickIndex:     len(nr.CompletedTricks),
			LeaderPlayerID: playerID,
		}
	}
	nt := nr.TrickInProgress
	if len(nt.Plays) == 0 {
		nt.LeaderPlayerID = playerID
		nt.LedSuit = played.Suit
		events = append(events, newEvent(s.GameID, EventTrickStarted, TrickStartedPayload{
			TrickIndex:     nt.TrickIndex,
			LeaderPlayerID: playerID,
		}))
	}

	order := len(nt.Plays)
	nt.Plays = append(nt.Plays, TrickPlay{PlayerID: playerID, Card: played, Order: order})

	hand := nps.Hand[:0]
	for _, c := range nps.Hand {
		if c.ID != played.ID {
			hand = append(hand, c)
		}
	}
	nps.Hand = hand

	events = append(events, newEvent(s.GameID, EventCardPlayed, CardPlayedPayload{
		PlayerID: playerID,
		Card:     played,
		Order:    order,
	}))

	if !nr.TrumpBroken && nr.TrumpSuit != "" &&
		nt.LedSuit != nr.TrumpSuit && played.Suit == nr.TrumpSuit {
		nr.TrumpBroken = true
		events = append(events, newEvent(s.GameID, EventTrumpBroken, TrumpBrokenPayload{PlayerID: playerID}))
	}

	if len(nt.Plays) == len(ns.ActivePlayers()) {
		events = append(events, completeTrick(ns)...)
	}
	return ns, events, nil
}

// completeTrick resolves the full trick in place on the already-cloned state.
// Trump beats non-trump; within trumps or the led suit, higher rank wins;
// exact card equality across decks goes to the later play.
func completeTrick(ns *GameState) []Event {
	nr := ns.RoundState
	trick := nr.TrickInProgress

	winIdx := 0
	for i := 1; i < len(trick.Plays); i++ {
		if playBeats(trick.Plays[i].Card, trick.Plays[winIdx].Card, trick.LedSuit, nr.TrumpSuit) {
			winIdx = i
		}
	}
	winner := trick.Plays[winIdx]

	trick.Completed = true
	trick.WinningPlayerID = winner.PlayerID
	trick.WinningCardID = winner.Card.ID
	nr.CompletedTricks = append(nr.CompletedTricks, trick.clone())
	nr.TrickInProgress = nil
	ns.PlayerStates[winner.PlayerID].TricksWon++

	events := []Event{newEvent(ns.GameID, EventTrickCompleted, TrickCompletedPayload{
		TrickIndex:      trick.TrickIndex,
		WinningPlayerID: winner.PlayerID,
		WinningCardID:   winner.Card.ID,
	})}

	if len(nr.CompletedTricks) == nr.CardsPerPlayer {
		events = append(events, scoreRound(ns)...)
	}
	return events
}

// playBeats reports whether challenger beats incumbent given the led and
// trump suits. Equal cards from different decks: the challenger (the later
// play) wins.
func playBeats(challenger, incumbent deck.Card, ledSuit, trumpSuit deck.Suit) bool {
	chTrump := trumpSuit != "" && challenger.Suit == trumpSuit
	inTrump := trumpSuit != "" && incumbent.Suit == trumpSuit
	switch {
	case chTrump && !inTrump:
		return true
	case !chTrump && inTrump:
		return false
	case chTrump && inTrump:
		return deck.CompareRank(challenger.Rank, incumbent.Rank) >= 0
	default:
		if challenger.Suit != ledSuit {
			return false
		}
		if incumbent.Suit != ledSuit {
			return true
		}
		return deck.CompareRank(challenger.Rank, incumbent.Rank) >= 0
	}
}

// scoreRound applies the scoring law delta = (tricks == bid) ? 5+bid :
// -(5+bid), records the round summary, and either opens the next-round
// window (SCORING) or completes the game.
func scoreRound(ns *GameState) []Event {
	nr := ns.RoundState
	summary := RoundSummary{
		RoundIndex:     nr.RoundIndex,
		CardsPerPlayer: nr.CardsPerPlayer,
		TrumpSuit:      nr.TrumpSuit,
		Bids:           make(map[string]int),
		TricksWon:      make(map[string]int),
		Deltas:         make(map[string]int),
	}

	for _, id := range ns.ActivePlayers() {
		ps := ns.PlayerStates[id]
		bid := 0
		if ps.Bid != nil {
			bid = *ps.Bid
		}
		delta := 5 + bid
		if ps.TricksWon != bid {
			delta = -delta
		}
		summary.Bids[id] = bid
		summary.TricksWon[id] = ps.TricksWon
		summary.Deltas[id] = delta

		ps.RoundScoreDelta = delta
		ps.Hand = nil
		ns.CumulativeScores[id] += delta
	}

	ns.RoundSummaries = append(ns.RoundSummaries, summary)

	events := []Event{newEvent(ns.GameID, EventRoundScored, RoundScoredPayload{Summary: summary})}

	if nr.RoundIndex+1 >= ns.Config.RoundCount {
		ns.Phase = PhaseCompleted
		final := make(map[string]int, len(ns.CumulativeScores))
		for id, v := range ns.CumulativeScores {
			final[id] = v
		}
		events = append(events, newEvent(ns.GameID, EventGameCompleted, GameCompletedPayload{FinalScores: final}))
	} else {
		ns.Phase = PhaseScoring
	}
	return events
}

// RoundRNG returns the deterministic stream bot decisions for the current
// round draw from. Seeded from the round seed so bot jitter replays exactly.
func RoundRNG(s *GameState, playerID string) *randutil.SplitMix64 {
	seed := s.Config.SessionSeed
	if s.RoundState != nil {
		seed = s.RoundState.RoundSeed
	}
	return randutil.NewSplitMix64(seed + ":" + playerID)
}
