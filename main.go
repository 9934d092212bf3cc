package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dylanconnolly/starparty-be/config"
	"github.com/dylanconnolly/starparty-be/logging"
	"github.com/dylanconnolly/starparty-be/redis"
	"github.com/dylanconnolly/starparty-be/server"
	"github.com/rs/zerolog/log"
)

var (
	listen string
)

func main() {
	cfg := config.LoadConfig()

	flag.StringVar(&listen, "listen", cfg.ListenAddr, "Listen address")
	flag.Parse()

	logging.Init(cfg.LogLevel, cfg.LogFile)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := NewApp(ctx, cfg)
	defer app.Close()

	go app.hub.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		app.httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", app.httpServer.Addr).Msg("listening")
	err := app.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("failed to listen")
	}
}

type App struct {
	db          *redis.DB
	hub         *server.Hub
	partyServer *server.PartyServer
	httpServer  *http.Server
}

func NewApp(ctx context.Context, cfg config.Config) *App {
	app := &App{}

	var store server.PresenceStore
	if cfg.RedisAddr != "" {
		app.db = redis.NewDB(redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := app.db.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, room listings fall back to this instance")
		}
		store = app.db
	}

	app.hub = server.NewHub(store, server.Options{
		AllowedRooms: cfg.AllowedRooms,
		GlobeRooms:   cfg.GlobeRooms,
		SendBuffer:   cfg.SendBuffer,
		MsgRate:      cfg.MsgRate,
		MsgBurst:     cfg.MsgBurst,
	})
	app.partyServer = server.NewPartyServer(app.hub, cfg.AllowedOrigins)
	app.httpServer = server.NewHTTPServer(listen, app.partyServer, cfg.AllowedOrigins)

	return app
}

func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
