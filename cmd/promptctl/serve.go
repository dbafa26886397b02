package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/promptobjects/core/internal/environment"
	"github.com/promptobjects/core/internal/maintenance"
	"github.com/promptobjects/core/internal/server"
)

// ServeCmd starts the HTTP + WebSocket server.
type ServeCmd struct {
	Env  string `arg:"" help:"Environment directory." type:"path"`
	Addr string `help:"Listen address." default:":8420"`

	Watch          bool   `help:"Hot-reload prompt objects when their files change." default:"true" negatable:""`
	MaxTurns       int    `help:"Cap on LLM-call iterations per turn (0 = unbounded)." default:"0"`
	RollupSchedule string `help:"Cron schedule for the usage rollup job." default:"@every 5m"`
	Tracing        bool   `help:"Enable OpenTelemetry span recording."`

	AuthJWKSURL  string `name:"auth-jwks-url" help:"Enable bearer auth, validating against this JWKS URL."`
	AuthIssuer   string `name:"auth-issuer" help:"Required token issuer."`
	AuthAudience string `name:"auth-audience" help:"Required token audience."`
}

func (c *ServeCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := environment.New(ctx, environment.Config{
		Dir:            c.Env,
		MaxTurns:       c.MaxTurns,
		TracingEnabled: c.Tracing,
	})
	if err != nil {
		return err
	}
	defer func() { _ = env.Close(context.Background()) }()

	rollups, err := maintenance.New(env.Store, c.RollupSchedule)
	if err != nil {
		return err
	}
	rollups.Start()
	defer rollups.Stop()

	if c.Watch {
		stopWatch, err := watchObjects(env)
		if err != nil {
			slog.Warn("file watcher unavailable, hot reload disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	srv, err := server.New(env, server.Config{
		Addr: c.Addr,
		Auth: server.AuthConfig{
			JWKSURL:  c.AuthJWKSURL,
			Issuer:   c.AuthIssuer,
			Audience: c.AuthAudience,
		},
		Rollups: rollups,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// watchObjects reloads a PO's registry entry whenever its backing file
// under objects/ is written. The watcher is a collaborator of the
// loader, not part of it: all it does is call ReloadPO.
func watchObjects(env *environment.Environment) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(env.Config.Dir, "objects")
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".md") {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := env.ReloadPO(ev.Name); err != nil {
					slog.Warn("prompt object reload failed", "file", ev.Name, "error", err)
				} else {
					slog.Info("prompt object reloaded", "file", ev.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("file watcher error", "error", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
