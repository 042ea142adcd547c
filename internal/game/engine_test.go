package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/eldorado/internal/deck"
)

func card(d int, s deck.Suit, r deck.Rank) deck.Card {
	return deck.NewCard(d, s, r)
}

// playingFixture builds a mid-round state with fixed hands, skipping the deal.
// Players are seated in the order given; bids are all zero and bidding is
// closed so play is open immediately.
func playingFixture(trump deck.Suit, leader string, hands map[string][]deck.Card, order ...string) *GameState {
	s := &GameState{
		GameID: "g-test",
		Config: Config{
			SessionSeed: "fixture",
			RoundCount:  1,
			MinPlayers:  2,
			MaxPlayers:  len(order),
		},
		Phase:            PhasePlaying,
		PlayerStates:     make(map[string]*PlayerState),
		CumulativeScores: make(map[string]int),
	}
	cards := 0
	for _, id := range order {
		if len(hands[id]) > cards {
			cards = len(hands[id])
		}
	}
	round := &RoundState{
		RoundIndex:       0,
		CardsPerPlayer:   cards,
		RoundSeed:        "fixture:0",
		TrumpSuit:        trump,
		Bids:             make(map[string]*int),
		BiddingComplete:  true,
		DealerPlayerID:   order[0],
		StartingPlayerID: leader,
	}
	for i, id := range order {
		s.Players = append(s.Players, PlayerInGame{
			PlayerID:  id,
			SeatIndex: i,
			Status:    StatusActive,
		})
		zero := 0
		round.Bids[id] = &zero
		s.PlayerStates[id] = &PlayerState{
			PlayerID: id,
			Hand:     append([]deck.Card(nil), hands[id]...),
			Bid:      &zero,
		}
		s.CumulativeScores[id] = 0
	}
	s.RoundState = round
	return s
}

// driveScenarioA runs the two-player single-round game from a fixed seed and
// returns the final state plus the full stamped event log.
func driveScenarioA(t *testing.T) (*GameState, []Event) {
	t.Helper()

	s, log := CreateGame("g-a", Config{SessionSeed: "S", RoundCount: 1, MinPlayers: 2, MaxPlayers: 2})

	var evs []Event
	var err error
	for _, id := range []string{"p1", "p2"} {
		s, evs, err = AddPlayer(s, id, PlayerProfile{DisplayName: id}, false, false)
		require.NoError(t, err)
		log = append(log, evs...)
	}

	s, evs, err = StartRound(s)
	require.NoError(t, err)
	log = append(log, evs...)

	require.Equal(t, PhaseBidding, s.Phase)
	require.Equal(t, "p1", s.RoundState.DealerPlayerID)
	require.Equal(t, "p2", s.RoundState.StartingPlayerID)
	require.Equal(t, 1, s.RoundState.CardsPerPlayer)

	s, evs, err = ApplyBid(s, "p1", 1)
	require.NoError(t, err)
	log = append(log, evs...)
	s, evs, err = ApplyBid(s, "p2", 0)
	require.NoError(t, err)
	log = append(log, evs...)

	require.Equal(t, PhasePlaying, s.Phase)

	for s.Phase == PhasePlaying {
		id := ExpectedPlayer(s)
		require.NotEmpty(t, id)
		cardID := s.PlayerStates[id].Hand[0].ID
		s, evs, err = PlayCard(s, id, cardID)
		require.NoError(t, err)
		log = append(log, evs...)
	}

	for i := range log {
		log[i].EventIndex = i
		log[i].Timestamp = 1700000000000 + int64(i)
	}
	return s, log
}

func TestScenarioA_SingleRoundScoring(t *testing.T) {
	s, log := driveScenarioA(t)

	require.Equal(t, PhaseCompleted, s.Phase)
	require.Len(t, s.RoundSummaries, 1)

	scored := 0
	for _, ev := range log {
		if ev.Type == EventRoundScored {
			scored++
		}
	}
	assert.Equal(t, 1, scored)

	// With p1 bidding 1 and p2 bidding 0 on a single trick, both players
	// make their bids or both miss: deltas are ±(5+1) and ±(5+0) with the
	// same sign.
	summary := s.RoundSummaries[0]
	winner := s.RoundState.CompletedTricks[0].WinningPlayerID
	if winner == "p1" {
		assert.Equal(t, map[string]int{"p1": 6, "p2": 5}, summary.Deltas)
	} else {
		assert.Equal(t, map[string]int{"p1": -6, "p2": -5}, summary.Deltas)
	}
	assert.Equal(t, summary.Deltas, s.CumulativeScores)
}

func TestScenarioA_LogByteIdentical(t *testing.T) {
	_, log1 := driveScenarioA(t)
	_, log2 := driveScenarioA(t)

	b1, err := json.Marshal(log1)
	require.NoError(t, err)
	b2, err := json.Marshal(log2)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestScenarioB_MustFollowSuit(t *testing.T) {
	hA := card(0, deck.Hearts, "A")
	c2 := card(0, deck.Clubs, "2")
	hK := card(0, deck.Hearts, "K")
	c3 := card(0, deck.Clubs, "3")

	s := playingFixture(deck.Spades, "p1",
		map[string][]deck.Card{
			"p1": {hA, c2},
			"p2": {hK, c3},
		},
		"p1", "p2")

	s, _, err := PlayCard(s, "p1", hA.ID)
	require.NoError(t, err)

	_, _, err = PlayCard(s, "p2", c3.ID)
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, ErrCodeMustFollowSuit, engErr.Code)
	assert.Len(t, s.PlayerStates["p2"].Hand, 2, "rejected play must not touch the hand")

	s, _, err = PlayCard(s, "p2", hK.ID)
	require.NoError(t, err)
	require.Len(t, s.RoundState.CompletedTricks, 1)
	assert.Equal(t, "p1", s.RoundState.CompletedTricks[0].WinningPlayerID)
}

func TestScenarioC_CannotLeadTrump(t *testing.T) {
	sK := card(0, deck.Spades, "K")
	h2 := card(0, deck.Hearts, "2")

	s := playingFixture(deck.Spades, "p1",
		map[string][]deck.Card{
			"p1": {sK, h2},
			"p2": {card(0, deck.Diamonds, "5"), card(0, deck.Clubs, "9")},
		},
		"p1", "p2")

	_, _, err := PlayCard(s, "p1", sK.ID)
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, ErrCodeCannotLeadTrump, engErr.Code)

	_, _, err = PlayCard(s, "p1", h2.ID)
	require.NoError(t, err)
}

func TestScenarioC_LeadTrumpWhenHandIsAllTrump(t *testing.T) {
	sK := card(0, deck.Spades, "K")
	s2 := card(0, deck.Spades, "2")

	s := playingFixture(deck.Spades, "p1",
		map[string][]deck.Card{
			"p1": {sK, s2},
			"p2": {card(0, deck.Diamonds, "5"), card(0, deck.Clubs, "9")},
		},
		"p1", "p2")

	_, _, err := PlayCard(s, "p1", sK.ID)
	require.NoError(t, err)
}

func TestScenarioD_TrumpBrokenWhenVoid(t *testing.T) {
	h10 := card(0, deck.Hearts, "10")
	s4 := card(0, deck.Spades, "4")

	s := playingFixture(deck.Spades, "p1",
		map[string][]deck.Card{
			"p1": {h10},
			"p2": {s4},
		},
		"p1", "p2")

	s, _, err := PlayCard(s, "p1", h10.ID)
	require.NoError(t, err)

	s, evs, err := PlayCard(s, "p2", s4.ID)
	require.NoError(t, err)

	broken := false
	for _, ev := range evs {
		if ev.Type == EventTrumpBroken {
			broken = true
		}
	}
	assert.True(t, broken, "playing off-suit trump must emit TRUMP_BROKEN")
	assert.True(t, s.RoundState.TrumpBroken)
	require.Len(t, s.RoundState.CompletedTricks, 1)
	assert.Equal(t, "p2", s.RoundState.CompletedTricks[0].WinningPlayerID)
}

func TestScenarioE_TieBreakByPlayOrder(t *testing.T) {
	s3 := card(0, deck.Spades, "3")
	aceD0 := card(0, deck.Spades, "A")
	aceD1 := card(1, deck.Spades, "A")

	s := playingFixture(deck.Spades, "p1",
		map[string][]deck.Card{
			"p1": {s3},
			"p2": {aceD0},
			"p3": {aceD1},
		},
		"p1", "p2", "p3")
	s.RoundState.TrumpBroken = true

	var err error
	for _, play := range []struct{ id, cardID string }{
		{"p1", s3.ID}, {"p2", aceD0.ID}, {"p3", aceD1.ID},
	} {
		s, _, err = PlayCard(s, play.id, play.cardID)
		require.NoError(t, err)
	}

	require.Len(t, s.RoundState.CompletedTricks, 1)
	trick := s.RoundState.CompletedTricks[0]
	assert.Equal(t, "p3", trick.WinningPlayerID)
	assert.Equal(t, aceD1.ID, trick.WinningCardID)
}

func TestPlayCard_OutOfTurn(t *testing.T) {
	s := playingFixture(deck.Spades, "p1",
		map[string][]deck.Card{
			"p1": {card(0, deck.Hearts, "2")},
			"p2": {card(0, deck.Hearts, "3")},
		},
		"p1", "p2")

	_, _, err := PlayCard(s, "p2", s.PlayerStates["p2"].Hand[0].ID)
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, ErrCodeNotPlayersTurn, engErr.Code)
}

func TestPlayCard_CardNotInHand(t *testing.T) {
	s := playingFixture(deck.Spades, "p1",
		map[string][]deck.Card{
			"p1": {card(0, deck.Hearts, "2")},
			"p2": {card(0, deck.Hearts, "3")},
		},
		"p1", "p2")

	_, _, err := PlayCard(s, "p1", deck.CardID(0, deck.Clubs, "A"))
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, ErrCodeCardNotInHand, engErr.Code)
}

func TestApplyBid_Validation(t *testing.T) {
	s, _ := CreateGame("g-bid", Config{SessionSeed: "S", RoundCount: 3, MinPlayers: 2, MaxPlayers: 2})
	var err error
	for _, id := range []string{"p1", "p2"} {
		s, _, err = AddPlayer(s, id, PlayerProfile{}, false, false)
		require.NoError(t, err)
	}
	s, _, err = StartRound(s)
	require.NoError(t, err)
	cards := s.RoundState.CardsPerPlayer

	t.Run("out of range", func(t *testing.T) {
		_, _, err := ApplyBid(s, "p2", cards+1)
		var engErr *EngineError
		require.ErrorAs(t, err, &engErr)
		assert.Equal(t, ErrCodeInvalidBid, engErr.Code)

		_, _, err = ApplyBid(s, "p2", -1)
		require.ErrorAs(t, err, &engErr)
		assert.Equal(t, ErrCodeInvalidBid, engErr.Code)
	})

	t.Run("double bid", func(t *testing.T) {
		ns, _, err := ApplyBid(s, "p2", 1)
		require.NoError(t, err)
		_, _, err = ApplyBid(ns, "p2", 2)
		var engErr *EngineError
		require.ErrorAs(t, err, &engErr)
		assert.Equal(t, ErrCodeInvalidBid, engErr.Code)
	})

	t.Run("dealer hook", func(t *testing.T) {
		// p1 deals round 0. Once p2 has bid, p1 may not land the total
		// on the trick count.
		ns, _, err := ApplyBid(s, "p2", 1)
		require.NoError(t, err)

		_, _, err = ApplyBid(ns, "p1", cards-1)
		var engErr *EngineError
		require.ErrorAs(t, err, &engErr)
		assert.Equal(t, ErrCodeHookViolation, engErr.Code)

		done, evs, err := ApplyBid(ns, "p1", cards)
		require.NoError(t, err)
		assert.Equal(t, PhasePlaying, done.Phase)
		require.Len(t, evs, 2)
		assert.Equal(t, EventBiddingComplete, evs[1].Type)
	})
}

func TestStartRound_DealerRotationAndSchedule(t *testing.T) {
	s, _ := CreateGame("g-rot", Config{SessionSeed: "rot", RoundCount: 3, MinPlayers: 3, MaxPlayers: 3})
	var err error
	for _, id := range []string{"p1", "p2", "p3"} {
		s, _, err = AddPlayer(s, id, PlayerProfile{}, false, false)
		require.NoError(t, err)
	}

	wantDealer := []string{"p1", "p2", "p3"}
	wantCards := []int{3, 2, 1}
	for round := 0; round < 3; round++ {
		s, _, err = StartRound(s)
		require.NoError(t, err)
		assert.Equal(t, wantDealer[round], s.RoundState.DealerPlayerID, "round %d dealer", round)
		assert.Equal(t, wantCards[round], s.RoundState.CardsPerPlayer, "round %d cards", round)

		// Finish the round with a complete pass of bids and plays.
		for _, id := range s.ActivePlayers() {
			bid := 0
			if id == s.RoundState.DealerPlayerID && s.RoundState.CardsPerPlayer == sumOthers(s.RoundState) {
				bid = 1
			}
			s, _, err = ApplyBid(s, id, bid)
			require.NoError(t, err)
		}
		for s.Phase == PhasePlaying {
			id := ExpectedPlayer(s)
			s, _, err = PlayCard(s, id, legalCard(t, s, id))
			require.NoError(t, err)
		}
	}
	assert.Equal(t, PhaseCompleted, s.Phase)
	assert.Len(t, s.RoundSummaries, 3)
}

func sumOthers(r *RoundState) int {
	total := 0
	for id, b := range r.Bids {
		if id == r.DealerPlayerID || b == nil {
			continue
		}
		total += *b
	}
	return total
}

func legalCard(t *testing.T, s *GameState, playerID string) string {
	t.Helper()
	for _, c := range s.PlayerStates[playerID].Hand {
		if _, _, err := PlayCard(s, playerID, c.ID); err == nil {
			return c.ID
		}
	}
	t.Fatalf("no legal card for %s", playerID)
	return ""
}

func TestScoringLaw(t *testing.T) {
	cases := []struct {
		bid, tricks, delta int
	}{
		{0, 0, 5},
		{0, 1, -5},
		{1, 1, 6},
		{1, 0, -6},
		{3, 3, 8},
		{3, 2, -8},
	}
	for _, tc := range cases {
		s := playingFixture(deck.Spades, "p1",
			map[string][]deck.Card{"p1": nil, "p2": nil},
			"p1", "p2")
		s.RoundState.CardsPerPlayer = tc.bid + tc.tricks + 1
		s.PlayerStates["p1"].Bid = &tc.bid
		s.PlayerStates["p1"].TricksWon = tc.tricks

		evs := scoreRound(s)
		require.NotEmpty(t, evs)
		assert.Equal(t, tc.delta, s.RoundSummaries[0].Deltas["p1"],
			"bid=%d tricks=%d", tc.bid, tc.tricks)
	}
}

func TestAddPlayer_SeatingRules(t *testing.T) {
	s, _ := CreateGame("g-seat", Config{SessionSeed: "s", RoundCount: 1, MinPlayers: 2, MaxPlayers: 2})
	var err error

	s, _, err = AddPlayer(s, "p1", PlayerProfile{}, false, false)
	require.NoError(t, err)
	s, _, err = AddPlayer(s, "p2", PlayerProfile{}, false, false)
	require.NoError(t, err)

	_, _, err = AddPlayer(s, "p3", PlayerProfile{}, false, false)
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr, "full game rejects a third seat")

	_, _, err = AddPlayer(s, "p1", PlayerProfile{}, false, false)
	require.Error(t, err, "duplicate player id rejected")

	s, _, err = AddPlayer(s, "watcher", PlayerProfile{}, false, true)
	require.NoError(t, err, "spectators join past the seat cap")
	assert.Equal(t, -1, s.FindPlayer("watcher").SeatIndex)
	assert.Len(t, s.ActivePlayers(), 2)

	s, _, err = StartRound(s)
	require.NoError(t, err)
	_, _, err = AddPlayer(s, "late", PlayerProfile{}, false, false)
	require.Error(t, err, "no new seats after the game starts")
	_, _, err = AddPlayer(s, "late-watcher", PlayerProfile{}, false, true)
	require.NoError(t, err, "spectators may join mid-game")
}

func TestCloneDoesNotShareState(t *testing.T) {
	s := playingFixture(deck.Spades, "p1",
		map[string][]deck.Card{
			"p1": {card(0, deck.Hearts, "2"), card(0, deck.Clubs, "4")},
			"p2": {card(0, deck.Hearts, "3"), card(0, deck.Clubs, "5")},
		},
		"p1", "p2")

	before := s.Clone()
	ns, _, err := PlayCard(s, "p1", s.PlayerStates["p1"].Hand[0].ID)
	require.NoError(t, err)

	assert.Len(t, s.PlayerStates["p1"].Hand, 2, "input state untouched")
	assert.Len(t, ns.PlayerStates["p1"].Hand, 1)
	assert.Equal(t, before.PlayerStates["p1"].Hand, s.PlayerStates["p1"].Hand)
	assert.Nil(t, s.RoundState.TrickInProgress)
	require.NotNil(t, ns.RoundState.TrickInProgress)
}

func TestViewHidesOtherHands(t *testing.T) {
	s := playingFixture(deck.Spades, "p1",
		map[string][]deck.Card{
			"p1": {card(0, deck.Hearts, "2")},
			"p2": {card(0, deck.Hearts, "3")},
		},
		"p1", "p2")

	v := ViewFor(s, "p1")
	require.NotNil(t, v.You)
	assert.Len(t, v.You.Hand, 1)
	for _, p := range v.Players {
		assert.Equal(t, 1, p.HandCount)
	}
	assert.Equal(t, "p1", v.ExpectedPlayerID)

	spectator := ViewFor(s, "watcher")
	assert.Nil(t, spectator.You)
}
