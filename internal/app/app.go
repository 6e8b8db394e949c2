package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/backend"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/console"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/dashboard"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/progress"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/server"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/stream"
)

const shutdownTimeout = 5 * time.Second

var errConsoleExit = errors.New("console exited")

// App owns every long-running component of the sync engine.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	api       *backend.Client
	orders    *cache.OrderCache
	stream    *stream.Manager
	tracker   *progress.Tracker
	poller    *dashboard.Poller
	publisher *kafka.Publisher
	server    *server.Server
	console   *console.Handler
	redis     *redis.Client

	in          io.Reader
	unsubscribe []func()
}

// New builds the components described by cfg. The console reads from in and
// writes to out; it is left out when disabled in cfg.
func New(cfg *config.Config, logger *zap.Logger, in io.Reader, out io.Writer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, in: in}

	a.api = backend.NewClient(cfg.Backend.URL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
		backend.WithLogger(logger),
	)
	a.orders = cache.NewOrderCache(a.api, logger)

	dialer, err := a.newDialer()
	if err != nil {
		return nil, err
	}
	a.stream = stream.NewManager(dialer,
		stream.WithReconnectDelay(cfg.Stream.ReconnectDelay),
		stream.WithLogger(logger),
	)

	a.tracker = progress.NewTracker(a.orders, a.api, progress.WithTrackerLogger(logger))
	a.unsubscribe = append(a.unsubscribe, a.orders.Subscribe(func(ch cache.Change) {
		if ch.Outcome.Changed() {
			a.tracker.Notify(ch.Order.ID, ch.Event.EventType)
		}
	}))

	a.poller = dashboard.NewPoller(a.api, a.orders, dashboard.Config{
		Interval:     cfg.Dashboard.Interval,
		ResyncOrders: cfg.Dashboard.ResyncOrders,
	}, logger)

	if cfg.Kafka.ChangeFeed {
		var producer kafka.Producer
		if cfg.Kafka.ConsoleProducer {
			producer = kafka.NewConsoleProducer(out, logger)
		} else {
			producer = kafka.NewWriterProducer(cfg.Kafka.Brokers, logger)
		}
		a.publisher = kafka.NewPublisher(producer, kafka.PublisherConfig{Topic: cfg.Kafka.ChangeTopic}, logger)
		a.unsubscribe = append(a.unsubscribe, a.orders.Subscribe(a.publisher.Observe))
	}

	if cfg.HTTP.Enabled {
		a.server = server.New(server.Deps{
			Orders:   a.orders,
			Snapshot: a.orders,
			Backend:  a.api,
			Progress: a.tracker,
			State:    a.poller,
			Liveness: a.stream,
		}, logger)
	}

	if cfg.Console.Enabled {
		a.console = console.New(a.orders, a.api, a.tracker, a.poller, out, logger)
	}

	return a, nil
}

func (a *App) newDialer() (stream.Dialer, error) {
	switch a.cfg.Stream.Transport {
	case config.TransportWebSocket:
		return stream.NewWebSocketDialer(a.cfg.Stream.URL), nil
	case config.TransportRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		return stream.NewRedisDialer(a.redis, a.cfg.Redis.Channel), nil
	case config.TransportKafka:
		return &stream.KafkaDialer{
			Brokers: a.cfg.Kafka.Brokers,
			Topic:   a.cfg.Kafka.OrderTopic,
			GroupID: a.cfg.Kafka.GroupID,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown stream transport %q", config.ErrInvalidConfig, a.cfg.Stream.Transport)
	}
}

// Orders exposes the reconciled collection.
func (a *App) Orders() *cache.OrderCache {
	return a.orders
}

// Run starts the stream subscription and loads the initial snapshot, then
// runs the background components until ctx is done or the console exits.
// Either order of stream events and snapshot is reconciled the same way.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := a.stream.Start(gctx, a.handleEvent, a.handleStreamState); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	if _, err := a.orders.LoadInitialData(gctx); err != nil {
		a.logger.Error("Initial orders load failed, continuing with stream only until retried", zap.Error(err))
	}

	g.Go(func() error {
		a.poller.Run(gctx)
		return nil
	})

	if a.publisher != nil {
		a.publisher.Start(gctx)
	}

	if a.server != nil {
		g.Go(func() error {
			if err := a.server.Run(gctx, a.cfg.HTTP.Addr); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	if a.console != nil {
		g.Go(func() error {
			if err := a.console.Run(gctx, a.in); err != nil {
				a.logger.Error("Console input failed", zap.Error(err))
			}
			if gctx.Err() != nil {
				return nil
			}
			return errConsoleExit
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errConsoleExit) {
		return err
	}
	a.logger.Info("Application stopped")
	return nil
}

func (a *App) handleEvent(ev model.OrderEvent) {
	outcome, err := a.orders.ApplyEvent(ev)
	if err != nil {
		a.logger.Warn("Dropping order event", zap.String("event_type", ev.EventType), zap.Error(err))
		return
	}
	a.logger.Debug("Order event reconciled",
		zap.String("order_id", ev.Order.ID),
		zap.String("event_type", ev.EventType),
		zap.String("outcome", string(outcome)),
	)
}

func (a *App) handleStreamState(s stream.State) {
	a.logger.Debug("Stream state changed", zap.String("state", string(s)))
}

// shutdown stops producers of changes before their consumers: the stream
// first, the change feed last so it can drain.
func (a *App) shutdown() {
	a.logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}

	a.stream.Stop()
	a.tracker.Close()
	a.poller.Shutdown()

	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	if a.publisher != nil {
		a.publisher.Shutdown()
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("Redis client close failed", zap.Error(err))
		}
	}
}
