package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-teleop/handpose/domain/pose"
	"github.com/open-teleop/handpose/pkg/api"
	"github.com/open-teleop/handpose/pkg/metrics"
	"github.com/open-teleop/handpose/pkg/processing"
	"github.com/open-teleop/handpose/pkg/transport"
	"github.com/open-teleop/handpose/pkg/zeromq"
	"github.com/open-teleop/handpose/services"
	"github.com/spf13/cobra"
)

const viewerBuffer = 32

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive record streams and serve them to viewers",
	Long: `Start the receiver. It accepts producer TCP streams on stream.listen_address,
decodes every 24-byte record and hands it to websocket viewers, the HTTP API
and, when zeromq.publish_bind_address is set, the ZeroMQ broadcast.

Examples:
  handposectl serve --config-dir=./config
  HANDPOSE_HTTP_PORT=9090 handposectl serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		accessLog, _ := cmd.Flags().GetBool("access-log")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, rt, accessLog)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("access-log", false, "Log every HTTP request")
}

func runServe(ctx context.Context, rt *runtime, accessLog bool) error {
	logger := rt.logger
	boot := rt.boot
	logger.Infof("Hand pose receiver starting up...")

	collector := metrics.NewCollector()

	configService, err := services.NewStreamConfigService(boot.StreamConfigPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to create stream config service: %w", err)
	}

	registry := processing.NewTopicRegistry(logger)
	configService.OnApply(registry.LoadFromConfig)

	director := processing.NewMessageDirectorFromBootstrap(boot.Processing, logger, registry)
	director.SetProcessor(processing.NewPoseProcessor(logger, rt.codec, registry).Func())

	poses := pose.NewPoseService(rt.codec)
	hub := pose.NewHub(viewerBuffer, rt.codec, collector)
	sinks := []processing.RecordSink{poses, hub}

	zmqService, err := zeromq.NewZeroMQService(boot.ZeroMQ, logger)
	if err != nil {
		return fmt.Errorf("failed to create ZeroMQ service: %w", err)
	}
	zmqService.SetRouter(director)
	configService.SetPublisher(zeromq.RegisterConfigHandlers(zmqService, configService, logger))
	zmqService.RegisterHandler(zeromq.MsgTypeStatsRequest, zeromq.NewStatsHandler(func() interface{} {
		return map[string]interface{}{
			"sources": poses.Stats(),
			"topics":  registry.GetTopicStats(),
			"pools":   director.GetPoolMetrics(),
			"viewers": hub.Count(),
		}
	}))
	if boot.ZeroMQ.PublishBindAddress != "" {
		sinks = append(sinks, zeromq.NewPosePublisher(zmqService, boot.ZeroMQ.PoseTopic, rt.codec, logger, collector))
	}

	director.SetResultHandler(processing.NewFanoutResultHandler(logger, collector, sinks...).WithTopicRegistry(registry).CreateHandlerFunc())
	director.Start()
	defer director.Stop()

	if err := zmqService.Start(); err != nil {
		return fmt.Errorf("failed to start ZeroMQ service: %w", err)
	}
	defer zmqService.Stop()

	if boot.ZeroMQ.SubscribeAddress != "" {
		poseListener := zeromq.NewPoseListener(boot.ZeroMQ.SubscribeAddress, boot.ZeroMQ.PoseTopic, director, logger)
		if err := poseListener.Start(); err != nil {
			return fmt.Errorf("failed to start ZeroMQ pose listener: %w", err)
		}
		defer poseListener.Stop()
	}

	listener, err := transport.Listen(boot.Stream.ListenAddress, transport.ListenerOptions{
		Topic:     boot.ZeroMQ.PoseTopic,
		Codec:     rt.codec,
		Router:    director,
		Logger:    logger,
		Collector: collector,
	})
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", boot.Stream.ListenAddress, err)
	}
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- listener.Serve(ctx)
	}()
	logger.Infof("Accepting record streams on %s", listener.Addr())

	app := api.NewApp(api.ServerOptions{
		Logger:        logger,
		Codec:         rt.codec,
		IngestTopic:   boot.ZeroMQ.PoseTopic,
		Router:        director,
		Poses:         poses,
		Hub:           hub,
		Director:      director,
		ConfigService: configService,
		Collector:     collector,
		AccessLog:     accessLog,
	})

	httpErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", boot.Server.HTTPPort)
		logger.Infof("Starting HTTP server on %s", addr)
		httpErr <- app.Listen(addr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Infof("Shutdown signal received, stopping receiver...")
	case err := <-streamErr:
		if err != nil {
			runErr = fmt.Errorf("record stream listener stopped: %w", err)
		}
	case err := <-httpErr:
		runErr = fmt.Errorf("HTTP server stopped: %w", err)
	}

	if err := listener.Close(); err != nil {
		logger.Warnf("Error closing stream listener: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Server shutdown failed: %v", err)
	}

	logger.Infof("Receiver stopped gracefully")
	return runErr
}
