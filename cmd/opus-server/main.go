package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/opus/api/proto"
	"github.com/heysubinoy/opus/internal/api"
	"github.com/heysubinoy/opus/internal/auth"
	"github.com/heysubinoy/opus/internal/command"
	"github.com/heysubinoy/opus/internal/persist"
	"github.com/heysubinoy/opus/internal/store"
	"github.com/heysubinoy/opus/pkg/config"
	"github.com/heysubinoy/opus/pkg/kv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "opus-server",
		Short: "Opus typed key-value store server",
		Long: `opus-server keeps strings, lists and sets in memory and serves them to
authenticated clients over gRPC and HTTP. Optional raft replication and
flushing to a filesystem, bolt or sqlite backend are enabled in config.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "path to a YAML config file")
	f.String("node-id", "", "unique node identifier (default: random)")
	f.String("grpc-addr", "", "gRPC listen address")
	f.String("http-addr", "", "HTTP listen address")
	f.String("users-file", "", "credentials file")
	f.String("log-level", "", "log level (trace, debug, info, warn, error)")
	f.Bool("raft", false, "enable raft replication")
	f.String("raft-addr", "", "raft bind address")
	f.String("raft-data", "", "raft data directory")
	f.Bool("bootstrap", false, "bootstrap a new single-node cluster")
	f.String("persistence", "", "persistence backend (none, fs, bolt, sqlite)")
	f.String("persistence-path", "", "persistence backend location")
	f.Duration("flush-interval", 0, "periodic flush interval (0 disables)")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "opus",
		Level: hclog.LevelFromString(cfg.LogLevel),
	}).With("node", cfg.NodeID)

	backend, err := persist.Open(cfg.Persistence.Backend, cfg.Persistence.Path)
	if err != nil {
		return fmt.Errorf("failed to open persistence backend: %w", err)
	}
	if backend != nil {
		defer backend.Close()
	}

	opts := []store.Option{store.WithLogger(logger.Named("store"))}
	if backend != nil {
		opts = append(opts, store.WithBackend(backend))
	}
	mem := store.NewMemStore(opts...)

	var kvStore kv.Store = mem
	var svcOpts []api.ServiceOption
	var rs *store.RaftStore

	if cfg.Raft.Enabled {
		// The raft log is authoritative; restoring the backend first would
		// apply its content twice once the log replays.
		rs, err = store.OpenRaft(store.RaftOptions{
			NodeID:    cfg.NodeID,
			Addr:      cfg.Raft.Addr,
			Dir:       cfg.Raft.Data,
			Bootstrap: cfg.Raft.Bootstrap,
			Logger:    logger,
		}, mem)
		if err != nil {
			return err
		}
		kvStore = rs
		svcOpts = append(svcOpts, api.WithCluster(rs))
	} else if backend != nil {
		if err := mem.Restore(ctx); err != nil {
			return fmt.Errorf("failed to restore from %s backend: %w", cfg.Persistence.Backend, err)
		}
		logger.Info("restored store", "backend", cfg.Persistence.Backend, "keys", mem.Size())
	}

	instrumented := store.NewInstrumentedStore(kvStore)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(instrumented.Collectors()...)

	var dispatchOpts []command.Option
	if mem.Backend() != nil {
		dispatchOpts = append(dispatchOpts, command.WithFlusher(mem))
	}
	dispatcher := command.NewDispatcher(instrumented, dispatchOpts...)

	users := auth.NewUsers(cfg.UsersFile, logger.Named("auth"))
	svc := api.NewService(users, auth.NewSessions(), dispatcher,
		append(svcOpts, api.WithLogger(logger.Named("api")))...)

	_, httpPort, err := net.SplitHostPort(cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("invalid http_addr %q: %w", cfg.HTTPAddr, err)
	}
	httpServer := api.NewServer(svc,
		api.WithMetrics(instrumented),
		api.WithRegistry(reg),
		api.WithHTTPPort(httpPort),
		api.WithHTTPLogger(logger.Named("http")),
	)

	eg, egctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}
		grpcServer := grpc.NewServer(grpc.UnaryInterceptor(api.UnaryLogger(logger.Named("grpc"))))
		proto.RegisterOpusServer(grpcServer, api.NewGRPCServer(svc))

		go func() {
			<-egctx.Done()
			grpcServer.GracefulStop()
		}()

		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("failed to serve gRPC: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		return httpServer.Serve(egctx, cfg.HTTPAddr)
	})

	if backend != nil && cfg.Persistence.FlushInterval > 0 {
		eg.Go(func() error {
			ticker := time.NewTicker(cfg.Persistence.FlushInterval)
			defer ticker.Stop()
			for {
				select {
				case <-egctx.Done():
					return nil
				case <-ticker.C:
					if err := mem.Flush(egctx); err != nil {
						logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		})
	}

	err = eg.Wait()

	if backend != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if ferr := mem.Flush(flushCtx); ferr != nil {
			logger.Error("final flush failed", "error", ferr)
		} else {
			logger.Info("flushed store on shutdown")
		}
		cancel()
	}
	if rs != nil {
		if serr := rs.GetRaft().Shutdown().Error(); serr != nil {
			logger.Error("raft shutdown failed", "error", serr)
		}
	}

	logger.Info("server stopped")
	return err
}
