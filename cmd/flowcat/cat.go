package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowgrid/flowfile"
)

var catCmd = &cobra.Command{
	Use:   "cat [FILE]...",
	Short: "Concatenate flow files into one output file",
	Long: `Concatenate the records of one or more flow files into a single
output file.  The output adopts the format of the first input; the
record version and compression method can be overridden.

Examples:
  # Merge into a new file
  flowcat cat --output merged.rw in1.rw in2.rw

  # Re-encode a file as version 3 with zlib block compression
  flowcat cat --output old-format.rw --record-version 3 --compression zlib in.rw`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCat,
}

var (
	catOutput      string
	catCompression string
	catVersion     uint16
	catClobber     bool
	catNotes       []string
)

func init() {
	catCmd.Flags().StringVarP(&catOutput, "output", "o", "-", "output path")
	catCmd.Flags().StringVar(&catCompression, "compression", "",
		"block compression method for the output (none, zlib, snappy, zstd, best, default)")
	catCmd.Flags().Uint16Var(&catVersion, "record-version", flowfile.VersionAny,
		"record version for the output")
	catCmd.Flags().BoolVar(&catClobber, "clobber", false, "overwrite an existing output file")
	catCmd.Flags().StringArrayVar(&catNotes, "note", nil, "annotation to add to the output header")
	rootCmd.AddCommand(catCmd)
}

func runCat(cmd *cobra.Command, args []string) error {
	opts, err := streamOptions()
	if err != nil {
		return err
	}

	// Writing to a regular file goes through a temp file in the same
	// directory, renamed into place on success.
	outPath := catOutput
	finalPath := ""
	if outPath != "-" && outPath != flowfile.PathStdout && outPath != flowfile.PathStderr {
		dir := filepath.Dir(outPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if !catClobber {
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("output file %s exists", outPath)
			}
		}
		finalPath = outPath
		outPath = tempName(outPath)
	}

	out, err := flowfile.New(flowfile.ModeWrite, flowfile.ContentFlow,
		append(opts, flowfile.WithClobber(catClobber))...)
	if err != nil {
		return err
	}
	defer func() {
		out.Close()
		if finalPath != "" {
			os.Remove(outPath)
		}
	}()
	if err := out.Bind(outPath); err != nil {
		return err
	}
	if err := out.Open(); err != nil {
		return err
	}

	var copied uint64
	for i, in := range args {
		src, err := openReader(in, opts)
		if err != nil {
			return err
		}

		if i == 0 {
			if err := prepareCatHeader(out, src); err != nil {
				src.Close()
				return err
			}
		}

		n, err := copyRecords(out, src)
		copied += n
		src.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", in, err)
		}
	}

	if err := out.Close(); err != nil {
		return err
	}
	if finalPath != "" {
		if err := os.Rename(outPath, finalPath); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", copied, catOutput)
	return nil
}

// prepareCatHeader shapes the output header after the first input and
// the command-line overrides, then writes it.
func prepareCatHeader(out, first *flowfile.Stream) error {
	h := out.Header()
	if err := h.SetFormat(first.Header().Format()); err != nil {
		return err
	}
	if err := h.SetRecordVersion(catVersion); err != nil {
		return err
	}
	if catCompression != "" {
		method, err := flowfile.CompressionFromName(catCompression)
		if err != nil {
			return err
		}
		if err := h.SetCompressionMethod(method); err != nil {
			return err
		}
	}
	if pf := first.Header().PackedFile(); pf != nil {
		if err := h.SetPackedFile(pf.StartHour, pf.FlowType, pf.Sensor); err != nil {
			return err
		}
	}
	for _, note := range catNotes {
		if err := h.AddEntry(&flowfile.AnnotationEntry{Note: note}); err != nil {
			return err
		}
	}
	if err := h.AddEntry(&flowfile.InvocationEntry{
		Command: strings.Join(os.Args, " "),
	}); err != nil {
		return err
	}
	return out.WriteHeader()
}

func copyRecords(out, in *flowfile.Stream) (uint64, error) {
	var (
		rec flowfile.Record
		n   uint64
	)
	for {
		err := in.ReadRecord(&rec)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := out.WriteRecord(&rec); err != nil {
			return n, err
		}
		n++
	}
}

// tempName keeps a trailing .gz on the temp file so the gzip naming
// convention still applies while writing.
func tempName(path string) string {
	if strings.HasSuffix(path, ".gz") {
		return fmt.Sprintf("%s.%d.tmp.gz", strings.TrimSuffix(path, ".gz"), os.Getpid())
	}
	return fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
}
