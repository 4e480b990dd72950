package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Wu-ChengLiang/BiliGo/internal/bili"
	"github.com/Wu-ChengLiang/BiliGo/internal/config"
	"github.com/Wu-ChengLiang/BiliGo/internal/events"
	"github.com/Wu-ChengLiang/BiliGo/internal/handlers"
	"github.com/Wu-ChengLiang/BiliGo/internal/logger"
	"github.com/Wu-ChengLiang/BiliGo/internal/monitor"
	"github.com/Wu-ChengLiang/BiliGo/internal/reply"
	"github.com/Wu-ChengLiang/BiliGo/internal/rules"
	"github.com/Wu-ChengLiang/BiliGo/internal/server"
	"github.com/Wu-ChengLiang/BiliGo/internal/settings"
	"github.com/Wu-ChengLiang/BiliGo/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the message polling engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			runApp(configPath)
			return nil
		},
	}
}

func runApp(configPath string) {
	fx.New(
		fx.Provide(
			func() (config.Config, error) {
				return config.Load(configPath)
			},
			provideLogger,
			provideSettingsService,
			provideEventRing,
			provideRulesService,
			provideAIAdapter,
			provideResolver,
			provideTransportFactory,
			monitor.New,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewConfigHandler),
			provideServerHandler(handlers.NewRulesHandler),
			provideServerHandler(handlers.NewMonitorHandler),
			provideServerHandler(handlers.NewLogsHandler),
			provideServer,
		),
		fx.Invoke(
			startRules,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideSettingsService(log *slog.Logger, cfg config.Config) (*settings.Service, error) {
	return settings.NewService(log, cfg.Data.SettingsPath())
}

func provideEventRing() *events.Ring {
	return events.NewRing(events.DefaultCapacity)
}

func provideRulesService(log *slog.Logger, cfg config.Config) *rules.Service {
	return rules.NewService(log, rules.NewStore(log, cfg.Data.RulesPath()), rules.NewIndex())
}

func provideAIAdapter(log *slog.Logger, cfg config.Config, svc *settings.Service) *reply.Adapter {
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	return reply.NewAdapter(log, func() string { return svc.Get().RAGServiceURL }, timeout)
}

func provideResolver(log *slog.Logger, rulesSvc *rules.Service, ai *reply.Adapter, svc *settings.Service) *reply.Resolver {
	return reply.NewResolver(log, rulesSvc.Index(), ai, svc.Get)
}

// provideTransportFactory builds transports from the credentials current at
// call time, so reinitialization picks up settings changes.
func provideTransportFactory(svc *settings.Service) monitor.TransportFactory {
	return func() monitor.Transport {
		cfg := svc.Get()
		return bili.New(bili.Config{
			SessData: cfg.SessData,
			BiliJct:  cfg.BiliJct,
		})
	}
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startRules(lc fx.Lifecycle, rulesSvc *rules.Service) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return rulesSvc.Bootstrap()
		},
		OnStop: func(context.Context) error {
			rulesSvc.Stop()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, m *monitor.Monitor, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting BiliGo %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := m.Stop(ctx); err != nil && !errors.Is(err, monitor.ErrNotRunning) {
				log.Warn("monitor stop", slog.Any("error", err))
			}
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
