package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/absmach/supermq/pkg/jaeger"
	smqprometheus "github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/absmach/swamp"
	"github.com/absmach/swamp/api"
	"github.com/absmach/swamp/bridge"
	"github.com/absmach/swamp/coordinator"
	"github.com/absmach/swamp/pkg/data"
	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/pkg/optim"
	"github.com/absmach/swamp/pkg/prometheus"
	"github.com/absmach/swamp/pkg/storage"
	"github.com/absmach/swamp/ps"
	"github.com/absmach/swamp/ps/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const svcName = "swamp"

var errNoService = errors.New("parameter server is not running yet")

var conf = &swamp.Config{}

// SetConfig sets the configuration the commands start from. Flags that are
// set explicitly override it.
func SetConfig(c *swamp.Config) {
	conf = c
}

func NewTrainCmd() *cobra.Command {
	var (
		trainers   int
		epochs     int
		batchSize  int
		freeTrial  int
		pullProb   float64
		seed       uint64
		runName    string
		transport  string
		storeType  string
		storePath  string
		httpPort   string
		serveAPI   bool
		drain      bool
		logLevel   string
		validateBS int
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training job",
		Long: `Run a training job: a parameter server and a set of trainers exchanging models.

Examples:
  # Four trainers, three epochs, losses persisted to badger
  swamp train --trainers 4 --epochs 3 --storage badger

  # Route pushes and the best model through an MQTT broker
  swamp train --transport mqtt`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg := *conf
			flags := cmd.Flags()
			if flags.Changed("trainers") {
				cfg.Train.Trainers = trainers
			}
			if flags.Changed("epochs") {
				cfg.Train.Epochs = epochs
			}
			if flags.Changed("batch-size") {
				cfg.Train.BatchSize = batchSize
			}
			if flags.Changed("validate-batch-size") {
				cfg.Train.ValidateBatchSize = validateBS
			}
			if flags.Changed("free-trial") {
				cfg.Train.FreeTrialSteps = freeTrial
			}
			if flags.Changed("pull-prob") {
				cfg.Train.PullProbability = pullProb
			}
			if flags.Changed("seed") {
				cfg.Train.Seed = seed
			}
			if flags.Changed("run-name") {
				cfg.Train.RunName = runName
			}
			if flags.Changed("drain") {
				cfg.Train.DrainOnFinish = drain
			}
			if flags.Changed("transport") {
				cfg.Transport = transport
			}
			if flags.Changed("storage") {
				cfg.Storage.Type = storeType
			}
			if flags.Changed("storage-path") {
				cfg.Storage = withStoragePath(cfg.Storage, storePath)
			}
			if flags.Changed("http-port") {
				cfg.HTTP.Port = httpPort
			}
			if flags.Changed("serve") {
				cfg.ServeAPI = serveAPI
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			report, err := train(cmd.Context(), cfg)
			if err != nil && !errors.Is(err, context.Canceled) {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, report)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&trainers, "trainers", "t", 1, "Number of concurrent trainers")
	flags.IntVarP(&epochs, "epochs", "e", 1, "Epochs per trainer")
	flags.IntVarP(&batchSize, "batch-size", "b", 64, "Training batch size")
	flags.IntVar(&validateBS, "validate-batch-size", 64, "Parameter server validation batch size")
	flags.IntVar(&freeTrial, "free-trial", 10, "Training steps before each exchange step")
	flags.Float64Var(&pullProb, "pull-prob", 0, "Probability of pulling the best model at each exchange step that does not push")
	flags.Uint64Var(&seed, "seed", 1, "Base random seed")
	flags.StringVarP(&runName, "run-name", "n", "", "Human readable run name")
	flags.StringVar(&transport, "transport", "local", "Exchange transport: local or mqtt")
	flags.StringVar(&storeType, "storage", "memory", "Storage backend: memory, badger, sqlite or postgres")
	flags.StringVar(&storePath, "storage-path", "./data/badger", "Badger directory or SQLite file")
	flags.StringVar(&httpPort, "http-port", "9090", "Status API port")
	flags.BoolVar(&serveAPI, "serve", false, "Keep serving the status API after the run")
	flags.BoolVar(&drain, "drain", false, "Handle every queued candidate after the trainers finish")
	flags.StringVarP(&logLevel, "log-level", "l", "info", "Log level")

	return cmd
}

func train(ctx context.Context, cfg swamp.Config) (coordinator.Report, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return coordinator.Report{}, err
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	// The run ID scopes persisted series, so it is fixed before storage opens.
	if cfg.Train.RunID == "" {
		cfg.Train.RunID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tp, err := newTracerProvider(ctx, cfg, logger)
	if err != nil {
		return coordinator.Report{}, err
	}
	tracer := tp.Tracer(svcName)

	repos, err := storage.NewRepositories(cfg.Storage, cfg.Train.RunID)
	if err != nil {
		return coordinator.Report{}, fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	hooks := []ps.PublishHook{
		ps.GaugeHook(
			prometheus.MakeGauge(svcName, "ps", "best_loss", "Double-check loss of the published model."),
			prometheus.MakeGauge(svcName, "ps", "best_version", "Version of the published model."),
		),
		ps.SnapshotHook(cfg.Train.RunID, repos.Snapshots),
	}

	exchange, err := newExchange(cfg, logger)
	if err != nil {
		return coordinator.Report{}, err
	}

	weights, bias := data.Coefficients(cfg.Data.Features, cfg.Data.Seed)
	counter, latency := smqprometheus.MakeMetrics(svcName, "ps")
	running := &lateService{}

	c, err := coordinator.New(cfg.Train, coordinator.Dependencies{
		Factory:    optim.LinearFactory(cfg.Data.Features, cfg.Optimizer.LearningRate, cfg.Optimizer.Momentum),
		Train:      data.Linear(cfg.Data.Samples, weights, bias, cfg.Data.Noise, cfg.Data.Seed),
		Validation: data.Linear(cfg.Data.ValidationSamples, weights, bias, cfg.Data.Noise, cfg.Data.Seed+1),
		Sink:       repos.Series,
		Exchange:   exchange,
		Hooks:      hooks,
		Wrap: func(svc ps.Service) ps.Service {
			svc = middleware.Logging(logger, svc)
			svc = middleware.Tracing(tracer, svc)
			svc = middleware.Metrics(counter, latency, svc)
			running.set(svc)

			return svc
		},
		Logger: logger,
	})
	if err != nil {
		return coordinator.Report{}, err
	}

	handler := api.MakeHandler(api.Sources{
		PS:        running,
		Sink:      repos.Series,
		Snapshots: repos.Snapshots,
		Evals:     repos.Evals,
		RunID:     c.RunID(),
	}, logger, cfg.InstanceID)
	hs := httpserver.NewServer(ctx, cancel, svcName, cfg.HTTP, handler, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A signal stops the server before the context is canceled.
		if err := hs.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})
	g.Go(func() error {
		return server.StopSignalHandler(gctx, cancel, logger, svcName, hs)
	})

	var report coordinator.Report
	g.Go(func() error {
		var err error
		report, err = c.Run(gctx)
		if cfg.ServeAPI && err == nil {
			logger.Info("Run finished, serving status API until interrupted")

			return nil
		}
		cancel()

		return err
	})

	err = g.Wait()

	return report, err
}

func newTracerProvider(ctx context.Context, cfg swamp.Config, logger *slog.Logger) (trace.TracerProvider, error) {
	if cfg.OTELURL == "" {
		return noop.NewTracerProvider(), nil
	}
	u, err := url.Parse(cfg.OTELURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse otel url: %w", err)
	}
	tp, err := jaeger.NewProvider(ctx, svcName, *u, cfg.InstanceID, cfg.TraceRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}
	context.AfterFunc(ctx, func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("error shutting down tracer provider", slog.Any("error", err))
		}
	})

	return tp, nil
}

func newExchange(cfg swamp.Config, logger *slog.Logger) (coordinator.Exchange, error) {
	switch cfg.Transport {
	case "local", "":
		return coordinator.LocalExchange(), nil
	case "mqtt":
		return bridge.NewExchange(bridge.MQTTConnector(cfg.MQTT, cfg.Train.RunID, logger), cfg.Train.RunID, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

var _ ps.Service = (*lateService)(nil)

// lateService lets the status API start before the run builds its parameter
// server.
type lateService struct {
	svc atomic.Pointer[ps.Service]
}

func (l *lateService) set(svc ps.Service) {
	l.svc.Store(&svc)
}

func (l *lateService) Handle(ctx context.Context, payload []byte) (ps.Decision, error) {
	svc := l.svc.Load()
	if svc == nil {
		return ps.Decision{}, errNoService
	}

	return (*svc).Handle(ctx, payload)
}

func (l *lateService) Best(ctx context.Context) (model.State, bool) {
	svc := l.svc.Load()
	if svc == nil {
		return model.State{}, false
	}

	return (*svc).Best(ctx)
}

func (l *lateService) Score(ctx context.Context) float64 {
	svc := l.svc.Load()
	if svc == nil {
		return math.Inf(1)
	}

	return (*svc).Score(ctx)
}
