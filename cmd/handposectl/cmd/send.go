package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-teleop/handpose/pkg/config"
	"github.com/open-teleop/handpose/pkg/metrics"
	"github.com/open-teleop/handpose/pkg/sensor"
	"github.com/open-teleop/handpose/pkg/transport"
	"github.com/open-teleop/handpose/pkg/zeromq"
	"github.com/spf13/cobra"
)

// defaultMinConfidence is the hand confidence at or below which frames are skipped.
const defaultMinConfidence = 0.4

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Stream hand poses to a receiver",
	Long: `Read hand frames from the tracker and stream one 24-byte record per frame
to the receiver at stream.dial_address. The connection is retried with
backoff and re-established after a failed write.

Examples:
  handposectl send --address=viewer.local:7070
  handposectl send --duration=10s --broadcast`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rate, _ := cmd.Flags().GetDuration("rate")
		if rate <= 0 {
			return fmt.Errorf("--rate must be positive, got %v", rate)
		}

		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		address, _ := cmd.Flags().GetString("address")
		if address == "" {
			address = rt.boot.Stream.DialAddress
		}
		if address == "" {
			return errors.New("no receiver address: set stream.dial_address or --address")
		}
		minConfidence, _ := cmd.Flags().GetFloat32("min-confidence")
		broadcast, _ := cmd.Flags().GetBool("broadcast")

		collector := metrics.NewCollector()
		dialer := &transport.Dialer{
			Address:   address,
			Backoff:   transport.BackoffFromBootstrap(rt.boot.Stream),
			Codec:     rt.codec,
			Logger:    rt.logger.WithField("receiver", address),
			Collector: collector,
		}
		stream := dialer.NewStream()
		defer stream.Close()

		producer := &sensor.Producer{
			Source:        sensor.NewSimulatedSource(rate),
			Writer:        stream,
			Interval:      throttleInterval(rt),
			MinConfidence: minConfidence,
			Logger:        rt.logger,
		}

		if broadcast {
			// The producer only publishes, so the request socket stays unbound.
			zmqCfg := rt.boot.ZeroMQ
			zmqCfg.RequestBindAddress = ""
			zmqService, err := zeromq.NewZeroMQService(zmqCfg, rt.logger)
			if err != nil {
				return err
			}
			if err := zmqService.Start(); err != nil {
				return err
			}
			defer zmqService.Stop()
			producer.Broadcaster = zeromq.NewPosePublisher(zmqService, zmqCfg.PoseTopic, rt.codec, rt.logger, collector)
		}

		rt.logger.Infof("Streaming hand poses to %s every %v", address, rate)
		stats, err := producer.Run(ctx)
		rt.logger.Infof("Producer stopped: frames=%d sent=%d skipped=%d throttled=%d send_errors=%d",
			stats.Frames, stats.Sent, stats.Skipped, stats.Throttled, stats.SendErrors)
		return err
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().String("address", "", "Receiver address, overrides stream.dial_address")
	sendCmd.Flags().Duration("rate", 10*time.Millisecond, "Tracker frame interval")
	sendCmd.Flags().Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	sendCmd.Flags().Float32("min-confidence", defaultMinConfidence, "Skip frames at or below this hand confidence")
	sendCmd.Flags().Bool("broadcast", false, "Also publish records on the ZeroMQ broadcast")
}

// throttleInterval reads the pose topic priority from the stream config.
// A missing stream config leaves the producer unthrottled.
func throttleInterval(rt *runtime) time.Duration {
	cfg, err := config.LoadConfig(rt.boot.StreamConfigPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			rt.logger.Warnf("Ignoring stream config: %v", err)
		}
		return 0
	}
	priority := cfg.Defaults.Priority
	if mapping, ok := cfg.GetTopicMappingByTopic(rt.boot.ZeroMQ.PoseTopic); ok {
		priority = mapping.Priority
	}
	return cfg.ThrottleInterval(priority)
}
