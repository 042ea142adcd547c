package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lox/eldorado/cmd/eldorado/shared"
	"github.com/lox/eldorado/internal/auth"
	"github.com/lox/eldorado/internal/metrics"
	"github.com/lox/eldorado/internal/server"
	"github.com/lox/eldorado/internal/store"
)

// ServerCmd contains core server configuration. Flags override the config
// file; environment variables cover deployment settings.
type ServerCmd struct {
	Config   string `kong:"default='eldorado.hcl',help='HCL config file'"`
	Debug    bool   `kong:"help='Enable debug logging'"`
	LogLevel string `kong:"env='LOG_LEVEL',help='Log level (overrides config)'"`

	Host string `kong:"env='HOST',help='Listen host (overrides config)'"`
	Port int    `kong:"env='PORT',help='Listen port (overrides config)'"`

	TokenSecret string        `kong:"env='PLAYER_TOKEN_SECRET',required,help='HMAC secret for player tokens'"`
	TokenTTL    time.Duration `kong:"env='PLAYER_TOKEN_TTL',default='1h',help='Player token lifetime'"`

	DatabaseURL string `kong:"env='DATABASE_URL',help='Postgres DSN; in-memory storage when empty'"`

	MCTSEnabled        bool   `kong:"env='MCTS_ENABLED',help='Route bot decisions to the MCTS sidecar'"`
	MCTSEndpoint       string `kong:"env='MCTS_ENDPOINT',help='MCTS sidecar base URL'"`
	MCTSStrategyType   string `kong:"env='MCTS_STRATEGY_TYPE',help='Strategy type forwarded to the sidecar'"`
	MCTSStrategyParams string `kong:"env='MCTS_STRATEGY_PARAMS',help='JSON strategy params forwarded to the sidecar'"`

	BotDelayMs    int `kong:"env='BOT_DELAY_MS',help='Bot wakeup delay (overrides config)'"`
	TurnTimeoutMs int `kong:"env='TURN_TIMEOUT_MS',help='Human turn timeout (overrides config)'"`
}

func (c *ServerCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)

	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if !c.Debug {
		level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Server.LogLevel, err)
		}
		logger = logger.Level(level)
	}
	if c.MCTSEnabled {
		cfg.Bots.RemoteURL = c.MCTSEndpoint
		if cfg.Bots.RemoteURL == "" {
			return errors.New("MCTS_ENABLED set without MCTS_ENDPOINT")
		}
	}
	if c.MCTSStrategyType != "" {
		cfg.Bots.StrategyType = c.MCTSStrategyType
	}
	if c.MCTSStrategyParams != "" {
		cfg.Bots.StrategyParams = c.MCTSStrategyParams
	}
	if c.BotDelayMs != 0 {
		cfg.Bots.DelayMS = c.BotDelayMs
	}
	if c.TurnTimeoutMs != 0 {
		cfg.Rooms.TurnTimeoutMS = c.TurnTimeoutMs
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	issuer, err := auth.NewTokenIssuer(c.TokenSecret, c.TokenTTL)
	if err != nil {
		return err
	}

	var st store.Store
	if c.DatabaseURL != "" {
		st, err = store.NewPostgres(c.DatabaseURL)
		if err != nil {
			return err
		}
		logger.Info().Msg("using postgres storage")
	} else {
		st = store.NewMemory()
		logger.Warn().Msg("no DATABASE_URL set, games will not survive restarts")
	}
	defer st.Close()

	m := metrics.New()
	clock := quartz.NewReal()
	writer := store.NewWriter(st, clock, logger, m.PersistenceRetries)
	srv := server.NewServer(cfg, st, writer, issuer, m, clock, logger)

	logger.Info().
		Str("address", cfg.ListenAddress()).
		Int("round_count", cfg.Rooms.RoundCount).
		Int("min_players", cfg.Rooms.MinPlayers).
		Int("max_players", cfg.Rooms.MaxPlayers).
		Dur("turn_timeout", cfg.TurnTimeout()).
		Str("bot_strategy", cfg.Bots.RemoteURL).
		Msg("Starting El Dorado server")

	ctx := shared.SignalContext(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := writer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("Server shutdown complete")
	return nil
}
