package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowgrid/flowfile"
)

var infoCmd = &cobra.Command{
	Use:   "info [FILE]...",
	Short: "Print header metadata and record counts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInfo,
}

var infoCount bool

func init() {
	infoCmd.Flags().BoolVar(&infoCount, "count-records", true, "count the records in each file")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	opts, err := streamOptions()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, path := range args {
		s, err := openReader(path, opts)
		if err != nil {
			return err
		}

		h := s.Header()
		order := "little-endian"
		if h.BigEndian() {
			order = "big-endian"
		}
		fmt.Fprintf(w, "%s:\n", path)
		fmt.Fprintf(w, "  format          %s (%#02x)\n", h.Format().Name(), uint8(h.Format()))
		fmt.Fprintf(w, "  record-version  %d\n", h.RecordVersion())
		fmt.Fprintf(w, "  record-length   %d\n", h.RecordLength())
		fmt.Fprintf(w, "  compression     %s\n", h.CompressionMethod().Name())
		fmt.Fprintf(w, "  byte-order      %s\n", order)

		for _, e := range h.Entries() {
			switch e := e.(type) {
			case *flowfile.PackedFileEntry:
				fmt.Fprintf(w, "  packed-file     start-hour=%s flow-type=%d sensor=%d\n",
					e.StartHour.Format("2006-01-02T15:04:05Z"), e.FlowType, e.Sensor)
			case *flowfile.AnnotationEntry:
				fmt.Fprintf(w, "  annotation      %s\n", e.Note)
			case *flowfile.InvocationEntry:
				fmt.Fprintf(w, "  invocation      %s\n", e.Command)
			case *flowfile.UnknownEntry:
				fmt.Fprintf(w, "  entry %-9d %d bytes\n", e.TypeID(), len(e.Data))
			}
		}

		if infoCount {
			n, err := countRecords(s)
			if err != nil {
				s.Close()
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(w, "  record-count    %d\n", n)
		}
		if err := s.Close(); err != nil {
			return err
		}
	}
	return nil
}

func countRecords(s *flowfile.Stream) (uint64, error) {
	const chunk = 1 << 20
	var total uint64
	for {
		n, err := s.SkipRecords(chunk)
		total += n
		if err != nil {
			return total, err
		}
		if n < chunk {
			return total, nil
		}
	}
}
