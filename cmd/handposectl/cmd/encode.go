package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/open-teleop/handpose/pkg/handpose"
	"github.com/spf13/cobra"
)

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Print the wire bytes of one record",
	Long: `Encode one record from flags and print its 24 bytes as hex, or decode
24 hex bytes given with --decode.

Examples:
  handposectl encode --x=1 --pitch=0.5
  handposectl encode --decode=0000803f0000000000000000000000000000000000000000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := codecFromFlag(cmd)
		if err != nil {
			return err
		}

		if raw, _ := cmd.Flags().GetString("decode"); raw != "" {
			data, err := hex.DecodeString(raw)
			if err != nil {
				return fmt.Errorf("invalid hex: %w", err)
			}
			record, err := codec.Decode(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), record)
			return nil
		}

		var record handpose.Record
		fields := []*float32{&record.X, &record.Y, &record.Z, &record.Pitch, &record.Yaw, &record.Roll}
		for i, name := range []string{"x", "y", "z", "pitch", "yaw", "roll"} {
			*fields[i], _ = cmd.Flags().GetFloat32(name)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(codec.Encode(record)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().String("byte-order", "little", "Record byte order: little, big or native")
	encodeCmd.Flags().String("decode", "", "Decode 24 hex-encoded bytes instead")
	for _, name := range []string{"x", "y", "z", "pitch", "yaw", "roll"} {
		encodeCmd.Flags().Float32(name, 0, "Record "+name)
	}
}
