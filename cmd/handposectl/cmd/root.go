package cmd

import (
	"fmt"
	"os"

	"github.com/open-teleop/handpose/pkg/config"
	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "handposectl",
	Short: "Hand pose record streaming",
	Long: `handposectl streams 24-byte hand pose records from a hand tracker
to AR viewers.

Run "serve" on the receiving side and "send" next to the tracker. "dump" and
"encode" inspect records offline.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config-dir", "c", "./config", "Directory holding "+config.BootstrapFileName)
	rootCmd.PersistentFlags().String("log-level", "", "Override the bootstrap log level")
}

// runtime is what every networked command needs from the bootstrap file.
type runtime struct {
	boot   *config.BootstrapConfig
	logger customlog.Logger
	codec  handpose.Codec
}

func loadRuntime(cmd *cobra.Command) (*runtime, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	boot, err := config.LoadBootstrapConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load bootstrap configuration: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		boot.Logging.Level = level
	}

	logger, err := customlog.NewLogrusLogger(boot.Logging.Level, boot.Logging.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	order, err := handpose.ParseByteOrder(boot.Wire.ByteOrder)
	if err != nil {
		return nil, err
	}

	return &runtime{boot: boot, logger: logger, codec: handpose.NewCodec(order)}, nil
}

// codecFromFlag builds a codec from the --byte-order flag of offline commands.
func codecFromFlag(cmd *cobra.Command) (handpose.Codec, error) {
	name, _ := cmd.Flags().GetString("byte-order")
	order, err := handpose.ParseByteOrder(name)
	if err != nil {
		return handpose.Codec{}, err
	}
	return handpose.NewCodec(order), nil
}
