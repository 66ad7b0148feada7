package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/open-teleop/handpose/pkg/handpose"
	"github.com/spf13/cobra"
)

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump [file]",
	Short: "Print the records of a captured stream",
	Long: `Read back-to-back 24-byte records from a file, or stdin when no file or
"-" is given, and print one record per line.

Example:
  nc -l 7070 > capture.bin; handposectl dump capture.bin`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := codecFromFlag(cmd)
		if err != nil {
			return err
		}

		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		hexOut, _ := cmd.Flags().GetBool("hex")
		n, err := dumpRecords(bufio.NewReader(in), cmd.OutOrStdout(), codec, hexOut)
		if err != nil {
			return fmt.Errorf("after %d records: %w", n, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().String("byte-order", "little", "Record byte order: little, big or native")
	dumpCmd.Flags().Bool("hex", false, "Also print the raw record bytes")
}

// dumpRecords prints records until a clean end of stream.
func dumpRecords(r io.Reader, w io.Writer, codec handpose.Codec, hexOut bool) (int, error) {
	n := 0
	for {
		record, err := codec.ReadRecord(r)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
		if hexOut {
			fmt.Fprintf(w, "%d\t%s\t%x\n", n, record, codec.Encode(record))
		} else {
			fmt.Fprintf(w, "%d\t%s\n", n, record)
		}
	}
}
