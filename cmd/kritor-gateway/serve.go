package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/kritor-gateway/admin"
	"github.com/ggoodman/kritor-gateway/bot"
	"github.com/ggoodman/kritor-gateway/config"
	"github.com/ggoodman/kritor-gateway/dispatch"
	"github.com/ggoodman/kritor-gateway/gateway"
	"github.com/ggoodman/kritor-gateway/internal/wire"
	"github.com/ggoodman/kritor-gateway/metrics"
	"github.com/ggoodman/kritor-gateway/plugins/echo"
	"github.com/ggoodman/kritor-gateway/plugins/memo"
	"github.com/ggoodman/kritor-gateway/plugins/repeat"
	"github.com/ggoodman/kritor-gateway/service"
	"github.com/ggoodman/kritor-gateway/storage"
	"github.com/ggoodman/kritor-gateway/storage/memory"
	redisstorage "github.com/ggoodman/kritor-gateway/storage/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownGrace = 5 * time.Second

type serveFlags struct {
	listen string
	admin  string
	config string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long:  "Run the gateway. Settings come from KRITOR_* environment variables and the optional TOML file; flags override both.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("config") {
				cfg.File = flags.config
				f, err := config.ReadFile(cfg.File)
				if err != nil {
					return err
				}
				if err := cfg.Apply(f); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = flags.listen
			}
			if cmd.Flags().Changed("admin") {
				cfg.AdminAddr = flags.admin
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&flags.listen, "listen", "", "gRPC listen address (overrides KRITOR_LISTEN_ADDR)")
	cmd.Flags().StringVar(&flags.admin, "admin", "", "admin HTTP address, empty to disable (overrides KRITOR_ADMIN_ADDR)")
	cmd.Flags().StringVar(&flags.config, "config", "", "TOML config file (overrides KRITOR_CONFIG)")
	return cmd
}

func serve(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	store, err := config.NewStore(cfg, nil)
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr(), cfg.LogFormat, store.Level())
	slog.SetDefault(log)
	store.SetLogger(log)

	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("serve.storage.close.fail", slog.String("err", err.Error()))
		}
	}()

	services := service.NewRegistry()
	if err := registerServices(services); err != nil {
		return err
	}

	sessions := bot.NewRegistry(bot.WithRegistryLogger(log))
	m := metrics.New()
	promReg := prometheus.NewRegistry()
	if err := errors.Join(
		m.Register(promReg),
		promReg.Register(metrics.NewSessionCollector(sessions)),
		promReg.Register(collectors.NewGoCollector()),
		promReg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})),
	); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	d := dispatch.New(services,
		dispatch.WithLogger(log),
		dispatch.WithMetrics(m),
		dispatch.WithEnv(&service.Env{Storage: st, Owners: store.Owners, Logger: log}),
	)
	gw := gateway.New(sessions, d,
		gateway.WithLogger(log),
		gateway.WithMetrics(m),
		gateway.WithWarmup(cfg.Warmup),
		gateway.WithBotOptions(bot.WithTransactionTimeout(store.TransactionTimeout)),
	)

	grpcSrv := grpc.NewServer(wire.ServerOptions()...)
	gw.Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	var httpSrv *http.Server
	if cfg.AdminAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           admin.New(sessions, admin.WithLogger(log), admin.WithGatherer(promReg)),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serve.grpc.listening",
			slog.String("addr", lis.Addr().String()),
			slog.Any("services", services.Names()),
			slog.String("storage", cfg.Storage),
		)
		return grpcSrv.Serve(lis)
	})
	if httpSrv != nil {
		g.Go(func() error {
			log.Info("serve.admin.listening", slog.String("addr", httpSrv.Addr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := store.Watch(gctx); err != nil {
			log.Warn("serve.config.watch.fail", slog.String("err", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("serve.shutdown")

		// Closing the sessions ends every reverse stream handler.
		sessions.Close()
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownGrace):
			grpcSrv.Stop()
		}

		if httpSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			_ = httpSrv.Shutdown(sctx)
		}
		d.Wait()
		return nil
	})

	return g.Wait()
}

func openStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	switch cfg.Storage {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		return redisstorage.New(redisstorage.Config{Client: client, KeyPrefix: cfg.RedisPrefix})
	default:
		return memory.New(cfg.MemoryItems)
	}
}

// registerServices is the explicit plugin registration phase. Services are
// listed here rather than registering themselves on import.
func registerServices(r *service.Registry) error {
	return errors.Join(
		echo.Register(r),
		repeat.Register(r),
		memo.Register(r),
	)
}
