package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/config"
	"github.com/TheNickoos/GilsTracker/internal/game"
	"github.com/TheNickoos/GilsTracker/internal/logging"
	"github.com/TheNickoos/GilsTracker/internal/mock"
	"github.com/TheNickoos/GilsTracker/internal/notify"
	"github.com/TheNickoos/GilsTracker/internal/service"
	"github.com/TheNickoos/GilsTracker/internal/tracker"
	"github.com/TheNickoos/GilsTracker/internal/ws"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const configReloadDebounce = 300 * time.Millisecond

type serveOptions struct {
	mock bool
	port int
	host string
}

func (o *serveOptions) bind(fs *pflag.FlagSet) {
	fs.BoolVar(&o.mock, "mock", false, "Use the simulated game client")
	fs.IntVarP(&o.port, "port", "p", 0, "Override server port")
	fs.StringVar(&o.host, "host", "", "Override listen address")
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath(cmd), opts, verbose)
		},
	}
	opts.bind(cmd.Flags())
	return cmd
}

func loadServeConfig(path string, opts serveOptions, verbose bool) (*config.Config, error) {
	config.LoadDotEnv()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := config.Default().Save(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	if opts.mock {
		cfg.Source.Mode = config.ModeMock
	}
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, path string, opts serveOptions, verbose bool) error {
	cfg, err := loadServeConfig(path, opts, verbose)
	if err != nil {
		return err
	}
	if err := logging.Configure(cfg.Log); err != nil {
		return err
	}
	log := logging.NewLogger("serve")

	g, ctx := errgroup.WithContext(ctx)

	gate, source, health := buildSource(ctx, g, cfg.Source, log)

	fw := game.NewFramework(cfg.Tracker.TickRate)
	tr := tracker.New(gate, source, fw,
		tracker.WithInterval(cfg.Tracker.PollInterval),
		tracker.WithLogger(logging.NewLogger("tracker")),
	)
	defer tr.Close()

	var svcOpts []service.Option
	if health != nil {
		svcOpts = append(svcOpts, service.WithHealth(health))
	}
	if pubs := buildPublishers(ctx, cfg.Notify, log); len(pubs) > 0 {
		d := notify.NewDispatcher(cfg.Notify.QueueSize, pubs...)
		svcOpts = append(svcOpts, service.WithDispatcher(d))
		g.Go(func() error { return d.Run(ctx) })
	}

	svc := service.New(tr, cfg, path, svcOpts...)
	defer svc.Close()

	broadcaster := ws.NewBroadcaster(svc.Snapshot, cfg.Broadcast.Throttle, cfg.Broadcast.SnapshotInterval, cfg.Server.MaxConnections)
	defer broadcaster.Stop()
	svc.SetBroadcaster(broadcaster)

	server := ws.NewServer(svc, broadcaster, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	watcher, err := config.NewWatcher(path, cfg, configReloadDebounce, svc.ApplyConfig)
	if err != nil {
		log.WithError(err).Warn("Config hot reload disabled")
	} else {
		g.Go(func() error {
			watcher.Start(ctx)
			return nil
		})
	}

	if cfg.Server.AuthToken == "" {
		log.Warn("No auth token configured; any local client can reset the session")
	}
	log.WithFields(logrus.Fields{
		"mode":   cfg.Source.Mode,
		"config": path,
		"poll":   cfg.Tracker.PollInterval,
	}).Info("GilsTracker starting")

	g.Go(func() error { return fw.Run(ctx) })
	g.Go(func() error { return svc.Run(ctx, 0) })
	g.Go(func() error {
		return ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler())
	})

	err = g.Wait()
	log.Info("GilsTracker stopped")
	return err
}

// buildSource picks the session gate and gil source for the configured mode
// and starts their background loops on g.
func buildSource(ctx context.Context, g *errgroup.Group, cfg config.SourceConfig, log *logrus.Entry) (tracker.SessionGate, tracker.SnapshotSource, service.HealthFunc) {
	if cfg.Mode == config.ModeMock {
		client := mock.NewClient(cfg.MockSeed, cfg.MockStep)
		g.Go(func() error { return client.Run(ctx) })
		log.WithField("seed", cfg.MockSeed).Info("Using simulated game client")
		return client, client, nil
	}

	feed := game.NewFeed(cfg.FeedPath, cfg.FeedPoll)
	g.Go(func() error { return feed.Run(ctx) })
	gates := []tracker.SessionGate{feed}

	if cfg.ProcessName != "" {
		proc := game.NewProcessGate(cfg.ProcessName, cfg.ProcessRefresh)
		g.Go(func() error { return proc.Run(ctx) })
		gates = append(gates, proc)
	}

	log.WithFields(logrus.Fields{"feed": cfg.FeedPath, "process": cfg.ProcessName}).Info("Using inventory feed")
	health := func() *game.Health {
		h := feed.Health()
		return &h
	}
	return game.AllGates(gates...), feed, health
}

// buildPublishers connects the configured sinks. A sink that cannot
// connect is logged and skipped.
func buildPublishers(ctx context.Context, cfg config.NotifyConfig, log *logrus.Entry) []notify.Publisher {
	var pubs []notify.Publisher
	if cfg.AMQPURL != "" {
		p, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			log.WithError(err).Warn("AMQP sink disabled")
		} else {
			pubs = append(pubs, p)
		}
	}
	if cfg.RedisAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		p, err := notify.NewRedisPublisher(dialCtx, cfg.RedisAddr, cfg.RedisChannel)
		cancel()
		if err != nil {
			log.WithError(err).Warn("Redis sink disabled")
		} else {
			pubs = append(pubs, p)
		}
	}
	return pubs
}
