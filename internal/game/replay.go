package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/lox/eldorado/internal/deck"
)

// Replay failure sentinels.
var (
	ErrCorruptLog         = errors.New("CORRUPT_LOG")
	ErrInvariantViolation = errors.New("INVARIANT_VIOLATION")
)

// Replay folds an event log back into the state that produced it. It
// verifies the log's integrity as it goes: indices must be dense and 0-based,
// every event must belong to the same game, and the final state must satisfy
// all structural invariants.
func Replay(events []Event) (*GameState, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: empty log", ErrCorruptLog)
	}
	if events[0].Type != EventGameCreated {
		return nil, fmt.Errorf("%w: log must open with GAME_CREATED, got %s", ErrCorruptLog, events[0].Type)
	}

	gameID := events[0].GameID
	var s *GameState
	for i, ev := range events {
		if ev.EventIndex != i {
			return nil, fmt.Errorf("%w: event %d has index %d", ErrCorruptLog, i, ev.EventIndex)
		}
		if ev.GameID != gameID {
			return nil, fmt.Errorf("%w: event %d belongs to game %s, want %s", ErrCorruptLog, i, ev.GameID, gameID)
		}
		next, err := applyEvent(s, ev)
		if err != nil {
			return nil, fmt.Errorf("%w: event %d (%s): %v", ErrCorruptLog, i, ev.Type, err)
		}
		s = next
	}

	if err := CheckInvariants(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return s, nil
}

// applyEvent applies the inverse of each event's producer. Mutation is safe
// here: the state is private to the fold until Replay returns it.
func applyEvent(s *GameState, ev Event) (*GameState, error) {
	switch ev.Type {
	case EventGameCreated:
		p, ok := PayloadAs[GameCreatedPayload](ev)
		if !ok {
			return nil, fmt.Errorf("bad payload")
		}
		ns, _ := CreateGame(ev.GameID, p.Config)
		ns.CreatedAt = time.UnixMilli(ev.Timestamp)
		ns.UpdatedAt = ns.CreatedAt
		return ns, nil

	case EventPlayerJoined:
		p, ok := PayloadAs[PlayerJoinedPayload](ev)
		if !ok {
			return nil, fmt.Errorf("bad payload")
		}
		s.Players = append(s.Players, p.Player)
		if !p.Player.Spectator {
			s.PlayerStates[p.Player.PlayerID] = &PlayerState{PlayerID: p.Player.PlayerID}
			s.CumulativeScores[p.Player.PlayerID] = 0
		}

	case EventRoundStarted:
		p, ok := PayloadAs[RoundStartedPayload](ev)
		if !ok {
			return nil, fmt.Errorf("bad payload")
		}
		round := &RoundState{
			RoundIndex:       p.RoundIndex,
			CardsPerPlayer:   p.CardsPerPlayer,
			RoundSeed:        p.RoundSeed,
			Bids:             make(map[string]*int),
			DealerPlayerID:   p.DealerPlayerID,
			StartingPlayerID: p.StartingPlayerID,
		}
		for _, id := range s.ActivePlayers() {
			round.Bids[id] = nil
			ps := s.PlayerStates[id]
			ps.Hand = nil
			ps.TricksWon = 0
			ps.Bid = nil
			ps.RoundScoreDelta = 0
		}
		s.RoundState = round
		s.Phase = PhaseBidding

	case EventCardsDealt:
		p, ok := PayloadAs[CardsDealtPayload](ev)
		if !ok {
			return nil, fmt.Errorf("bad payload")
		}
		for id, hand := range p.Hands {
			ps, found := s.PlayerStates[id]
			if !found {
				return nil, fmt.Errorf("deal to unknown player %s", id)
			}
			ps.Hand = append([]deck.Card(nil), hand...)
		}

	case EventTrumpRevealed:
		p, ok := PayloadAs[TrumpRevealedPayload](ev)
		if !ok {
			return nil, fmt.Errorf("bad payload")
		}
		if s.RoundState == nil {
			return nil, fmt.Errorf("no round in progress")
		}
		s.RoundState.TrumpCard = p.TrumpCard
		s.RoundState.TrumpSuit = p.TrumpSuit

	case EventPlayerBid:
		p, ok := PayloadAs[PlayerBidPayload](ev)
		if !ok {
			return nil, fmt.Errorf("bad payload")
		}
		if s.RoundState == nil {
			return nil, fmt.Errorf("no round in progress")
		}
		b := p.Bid
		s.RoundState.Bids[p.PlayerID] = &b
		if ps := s.PlayerStates[p.PlayerID]; ps != nil {
			ps.Bid = &b
		}

	case EventBiddingComplete:
		if s.RoundState == nil {
			return nil, fmt.Errorf("no round in progress")
		}
		s.RoundState.BiddingComplete = true
		s.Phase = PhasePlaying

	case EventTrickStarted:
		p, ok := PayloadAs[TrickStartedPayload](ev)
		if !ok {
			return nil, fmt.Errorf("bad payload")
		}
		if s.RoundState == nil {
			return nil, fmt.Errorf("no round in progress")
		}
		s.RoundState.TrickInProgress = &TrickState{
			TrickIndex:     p.TrickIndex,
			LeaderPlayerID: p.LeaderPlayerID,
		}

	case EventCardPlayed:
		p, ok := PayloadAs[CardPlayedPayload](ev)
		if !ok {
			return nil, fmt.Errorf("bad payload")
		}
		round := s.RoundState
		if round == nil || round.TrickInProgress == nil {
			return nil, fmt.Errorf("no trick in progress")
		}
		trick := round.TrickInProgress
		if len(trick.Plays) == 0 {
			trick.LedSuit = p.Card.Suit
		}
		trick.Plays = append(trick.Plays, TrickPlay{PlayerID: p.PlayerID, Card: p.Card, Order: p.Order})
		ps := s.PlayerStates[p.PlayerID]
		if ps == nil {
			return nil, fmt.Errorf("play by unknown player %s", p.PlayerID)
		}
		hand := ps.Hand[:0]
		removed := false
		for _, c := range ps.Hand {
			if c.ID == p.Card.ID && !removed {
				removed = true
				continue
			}
			hand = append(hand, c)
		}
		if !removed {
			return nil, fmt.Errorf("player %s played %s without holding it", p.PlayerID, p.Card.ID)
		}
		ps.Hand = hand

	case EventTrumpBroken:
		if s.RoundState == nil {
			return nil, fmt.Errorf("no round in progress")
		}
		s.RoundState.TrumpBroken = true

	case EventTrickCompleted:
		p, ok := PayloadAs[TrickCompletedPayload](ev)
		if !ok {
			return nil, fmt.Errorf("bad payload")
		}
		round := s.RoundState
		if round == nil || round.TrickInProgress == nil {
			return nil, fmt.Errorf("no trick in progress")
		}
		trick := round.TrickInProgress
		trick.Completed = true
		trick.WinningPlayerID = p.WinningPlayerID
		trick.WinningCardID = p.WinningCardID
		round.CompletedTricks = append(round.CompletedTricks, trick.clone())
		round.TrickInProgress = nil
		if ps := s.PlayerStates[p.WinningPlayerID]; ps != nil {
			ps.TricksWon++
		}

	case EventRoundScored:
		p, ok := PayloadAs[RoundScoredPayload](ev)
		if !ok {
			return nil, fmt.Errorf("bad payload")
		}
		for id, delta := range p.Summary.Deltas {
			s.CumulativeScores[id] += delta
			if ps := s.PlayerStates[id]; ps != nil {
				ps.RoundScoreDelta = delta
				ps.Hand = nil
			}
		}
		s.RoundSummaries = append(s.RoundSummaries, p.Summary)
		s.Phase = PhaseScoring

	case EventGameCompleted:
		s.Phase = PhaseCompleted

	case EventInvalidAction:
		// Rejections are logged for stats but never change state.

	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}

	s.UpdatedAt = time.UnixMilli(ev.Timestamp)
	return s, nil
}
