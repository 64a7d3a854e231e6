package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0x6flab/namegenerator"
	flclient "github.com/absmach/flclient"
	"github.com/absmach/flclient/client"
	"github.com/absmach/flclient/client/api"
	"github.com/absmach/flclient/client/middleware"
	"github.com/absmach/flclient/pkg/backend"
	"github.com/absmach/flclient/pkg/crypto"
	"github.com/absmach/flclient/pkg/engine"
	"github.com/absmach/flclient/pkg/mqtt"
	"github.com/absmach/flclient/pkg/prometheus"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName         = "flclient"
	shutdownTimeout = 10 * time.Second
)

type envConfig struct {
	LogLevel           string        `env:"FLCLIENT_LOG_LEVEL"           envDefault:"info"`
	InstanceID         string        `env:"FLCLIENT_INSTANCE_ID"`
	HTTPPort           string        `env:"FLCLIENT_HTTP_PORT"           envDefault:"9090"`
	MQTTQoS            uint8         `env:"FLCLIENT_MQTT_QOS"            envDefault:"1"`
	MQTTTimeout        time.Duration `env:"FLCLIENT_MQTT_TIMEOUT"        envDefault:"30s"`
	MQTTUsername       string        `env:"FLCLIENT_MQTT_USERNAME"`
	MQTTPassword       string        `env:"FLCLIENT_MQTT_PASSWORD"`
	MQTTCAPath         string        `env:"FLCLIENT_MQTT_CA_PATH"`
	MQTTCertPath       string        `env:"FLCLIENT_MQTT_CERT_PATH"`
	MQTTKeyPath        string        `env:"FLCLIENT_MQTT_KEY_PATH"`
	LivelinessInterval time.Duration `env:"FLCLIENT_LIVELINESS_INTERVAL" envDefault:"10s"`
	PayloadKey         string        `env:"FLCLIENT_PAYLOAD_KEY"`
}

type startFlags struct {
	cid           string
	deviceNum     int
	rootDir       string
	serverAddress string
}

func newStartCmd() *cobra.Command {
	var flags startFlags

	cmd := &cobra.Command{
		Use:   "start <config>",
		Short: "Start a federated client",
		Long: `Load a TOML or YAML client config, build the configured model and data
source and serve coordinator instructions until interrupted.

Examples:
  flclient start client.toml --cid 3 --device-num 1 --root-dir /datasets`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flclient.LoadConfig(args[0])
			if err != nil {
				return err
			}

			return start(cmd.Context(), cfg.Apply(flags.overrides(cmd)))
		},
	}

	cmd.Flags().StringVar(&flags.cid, "cid", "", "Client identity reported with every result")
	cmd.Flags().IntVar(&flags.deviceNum, "device-num", 0, "Index of the first local device to run on")
	cmd.Flags().StringVar(&flags.rootDir, "root-dir", "", "Absolute path to all datasets")
	cmd.Flags().StringVar(&flags.serverAddress, "server-address", "", "MQTT broker of the coordinator")
	cmd.Flags().StringVar(&flags.serverAddress, "server-adress", "", "Alias of --server-address")
	_ = cmd.Flags().MarkHidden("server-adress")

	return cmd
}

func (f *startFlags) overrides(cmd *cobra.Command) flclient.Overrides {
	var o flclient.Overrides
	if cmd.Flags().Changed("cid") {
		o.ClientID = &f.cid
	}
	if cmd.Flags().Changed("device-num") {
		o.DeviceNum = &f.deviceNum
	}
	if cmd.Flags().Changed("root-dir") {
		o.RootDir = &f.rootDir
	}
	if cmd.Flags().Changed("server-address") || cmd.Flags().Changed("server-adress") {
		o.ServerAddress = &f.serverAddress
	}

	return o
}

func start(ctx context.Context, cfg flclient.Config) error {
	ecfg := envConfig{}
	if err := env.Parse(&ecfg); err != nil {
		return fmt.Errorf("failed to load environment configuration: %w", err)
	}
	if ecfg.InstanceID == "" {
		ecfg.InstanceID = uuid.NewString()
	}

	logger := configureLogger(ecfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.ClientID == "" {
		cfg.ClientID = namegenerator.NewGenerator().Generate()
		logger.Info("no client ID configured, generated one", slog.String("cid", cfg.ClientID))
	}
	if err := errors.Join(cfg.Validate(), cfg.ValidateServer()); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	registries, err := flclient.NewRegistries()
	if err != nil {
		return err
	}
	model, data, err := registries.Build(cfg)
	if err != nil {
		return err
	}

	b, err := backend.New(cfg.Fabric)
	if err != nil {
		return err
	}

	svc, err := client.New(cfg.ClientID, model, data, b, engine.New(), logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	tracer := noop.NewTracerProvider().Tracer(svcName)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "client")
	svc = middleware.Metrics(counter, latency, svc)

	sessCfg := client.SessionConfig{
		DomainID:           cfg.DomainID,
		ChannelID:          cfg.ChannelID,
		ClientID:           cfg.ClientID,
		Namespace:          cfg.Namespace,
		LivelinessInterval: ecfg.LivelinessInterval,
	}
	if ecfg.PayloadKey != "" {
		if sessCfg.PayloadKey, err = crypto.ParseKey(ecfg.PayloadKey); err != nil {
			return fmt.Errorf("invalid payload key: %w", err)
		}
	}

	pubsub, err := mqtt.NewPubSub(mqtt.Config{
		BrokerURL: cfg.ServerAddress,
		ClientID:  fmt.Sprintf("%s-%s", svcName, cfg.ClientID),
		Username:  ecfg.MQTTUsername,
		Password:  ecfg.MQTTPassword,
		QoS:       ecfg.MQTTQoS,
		Timeout:   ecfg.MQTTTimeout,
		CAPath:    ecfg.MQTTCAPath,
		CertPath:  ecfg.MQTTCertPath,
		KeyPath:   ecfg.MQTTKeyPath,
		Will: &mqtt.Will{
			Topic:   sessCfg.AliveTopic(),
			Payload: map[string]string{"status": "offline", "proplet_id": cfg.ClientID},
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize mqtt pubsub: %w", err)
	}
	defer func() {
		if err := pubsub.Disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect from broker", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	hs := &http.Server{
		Addr:              ":" + ecfg.HTTPPort,
		Handler:           api.MakeHandler(svc, logger, ecfg.InstanceID, cfg.ClientID),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("%s HTTP server listening", svcName), slog.String("port", ecfg.HTTPPort))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return hs.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return client.NewSession(svc, pubsub, sessCfg, logger).Run(ctx)
	})

	logger.Info("federated client started",
		slog.String("cid", cfg.ClientID),
		slog.String("model", cfg.Model.Name),
		slog.String("data", cfg.Data.Name),
		slog.String("strategy", b.Config().Strategy),
	)

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))

		return err
	}

	return nil
}
