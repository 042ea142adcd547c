package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lox/eldorado/internal/deck"
)

// DefaultRemoteTimeout bounds each strategy request.
const DefaultRemoteTimeout = 2 * time.Second

// GameIDHeader carries the game id on strategy requests for correlation.
const GameIDHeader = "X-Eldorado-Game-Id"

// Remote asks an out-of-process strategy service for decisions and falls
// back to the wrapped strategy on any failure: timeout, non-2xx, malformed
// body, or a card the hand does not hold.
type Remote struct {
	baseURL   string
	client    *http.Client
	fallback  Strategy
	logger    zerolog.Logger
	fallbacks prometheus.Counter
	latency   prometheus.Observer
	gameID    string
	config    map[string]any
}

// RemoteOption configures a Remote strategy.
type RemoteOption func(*Remote)

// WithRemoteTimeout overrides the per-request timeout.
func WithRemoteTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) { r.client.Timeout = d }
}

// WithRemoteMetrics wires the fallback counter and latency histogram.
func WithRemoteMetrics(fallbacks prometheus.Counter, latency prometheus.Observer) RemoteOption {
	return func(r *Remote) {
		r.fallbacks = fallbacks
		r.latency = latency
	}
}

// WithRemoteConfig attaches opaque strategy parameters passed through on
// every request.
func WithRemoteConfig(config map[string]any) RemoteOption {
	return func(r *Remote) { r.config = config }
}

// NewRemote builds a remote strategy for one game.
func NewRemote(baseURL, gameID string, fallback Strategy, logger zerolog.Logger, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: DefaultRemoteTimeout},
		fallback: fallback,
		logger:   logger.With().Str("component", "remote-strategy").Str("game_id", gameID).Logger(),
		gameID:   gameID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type strategyRequest struct {
	Phase   string         `json:"phase"`
	Hand    []deck.Card    `json:"hand"`
	Context *Context       `json:"context"`
	Config  map[string]any `json:"config,omitempty"`
}

type bidResponse struct {
	Bid int `json:"bid"`
}

type playResponse struct {
	Card string `json:"card"`
}

func (r *Remote) Bid(ctx context.Context, hand []deck.Card, bc *Context) (int, error) {
	var resp bidResponse
	if err := r.post(ctx, "/bid", strategyRequest{Phase: "BIDDING", Hand: hand, Context: bc, Config: r.config}, &resp); err != nil {
		return r.bidFallback(ctx, hand, bc, err)
	}
	if resp.Bid < 0 || resp.Bid > bc.CardsPerPlayer {
		return r.bidFallback(ctx, hand, bc, fmt.Errorf("bid %d out of range", resp.Bid))
	}
	return clampBid(resp.Bid, bc), nil
}

func (r *Remote) PlayCard(ctx context.Context, hand []deck.Card, bc *Context) (deck.Card, error) {
	var resp playResponse
	if err := r.post(ctx, "/play", strategyRequest{Phase: "PLAYING", Hand: hand, Context: bc, Config: r.config}, &resp); err != nil {
		return r.playFallback(ctx, hand, bc, err)
	}
	for _, c := range legalPlays(hand, bc) {
		if c.ID == resp.Card {
			return c, nil
		}
	}
	return r.playFallback(ctx, hand, bc, fmt.Errorf("card %q is not a legal play", resp.Card))
}

func (r *Remote) bidFallback(ctx context.Context, hand []deck.Card, bc *Context, cause error) (int, error) {
	r.noteFallback("bid", cause)
	return r.fallback.Bid(ctx, hand, bc)
}

func (r *Remote) playFallback(ctx context.Context, hand []deck.Card, bc *Context, cause error) (deck.Card, error) {
	r.noteFallback("play", cause)
	return r.fallback.PlayCard(ctx, hand, bc)
}

func (r *Remote) noteFallback(op string, cause error) {
	r.logger.Warn().Err(cause).Str("op", op).Msg("remote strategy failed, using baseline")
	if r.fallbacks != nil {
		r.fallbacks.Inc()
	}
}

func (r *Remote) post(ctx context.Context, path string, body strategyRequest, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(GameIDHeader, r.gameID)

	start := time.Now()
	resp, err := r.client.Do(req)
	if r.latency != nil {
		r.latency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, 1<<20)
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
