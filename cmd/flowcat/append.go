package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowgrid/flowfile"
)

var appendCmd = &cobra.Command{
	Use:   "append TARGET [FILE]...",
	Short: "Append flow records to an existing file",
	Long: `Append the records of one or more flow files to an existing target
file, in place.  The sources must decode to the target's record family;
gzip-wrapped targets cannot be appended to.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAppend,
}

func init() {
	rootCmd.AddCommand(appendCmd)
}

func runAppend(cmd *cobra.Command, args []string) error {
	opts, err := streamOptions()
	if err != nil {
		return err
	}

	target, sources := args[0], args[1:]

	out, err := flowfile.New(flowfile.ModeAppend, flowfile.ContentFlow, opts...)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := out.Bind(target); err != nil {
		return err
	}
	if err := out.Open(); err != nil {
		return err
	}
	if err := out.Lock(); err != nil {
		return err
	}
	if err := out.ReadHeader(); err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}

	var appended uint64
	for _, in := range sources {
		src, err := openReader(in, opts)
		if err != nil {
			return err
		}
		n, err := copyRecords(out, src)
		appended += n
		src.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", in, err)
		}
	}

	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "appended %d records to %s\n", appended, target)
	return nil
}
