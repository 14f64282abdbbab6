package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flowgrid/flowfile"
)

var (
	// Global flags.
	verbose    bool
	ipv6Policy string
)

var rootCmd = &cobra.Command{
	Use:   "flowcat",
	Short: "Copy, append, and inspect flow-record files",
	Long: `Flowcat works with files of fixed-size binary network-flow records:
it concatenates them, appends new records to existing files, and prints
header metadata.

Examples:
  # Merge two capture files into one, zstd-compressed
  flowcat cat --output merged.rw --compression zstd in1.rw in2.rw

  # Append records to an existing file
  flowcat append archive.rw today.rw

  # Show the header of a file
  flowcat info archive.rw`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&ipv6Policy, "ipv6-policy", "mix",
		"dual-stack record handling: mix, ignore, asv4, force, only")
}

func buildLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func parsePolicy(name string) (flowfile.IPv6Policy, error) {
	switch name {
	case "mix":
		return flowfile.PolicyMix, nil
	case "ignore":
		return flowfile.PolicyIgnore, nil
	case "asv4":
		return flowfile.PolicyAsV4, nil
	case "force":
		return flowfile.PolicyForce, nil
	case "only":
		return flowfile.PolicyOnly, nil
	}
	return 0, fmt.Errorf("unknown ipv6 policy %q", name)
}

func streamOptions() ([]flowfile.Option, error) {
	policy, err := parsePolicy(ipv6Policy)
	if err != nil {
		return nil, err
	}
	return []flowfile.Option{
		flowfile.WithLogger(buildLogger()),
		flowfile.WithIPv6Policy(policy),
	}, nil
}

// openReader opens one input file of flow records and consumes its
// header.
func openReader(path string, opts []flowfile.Option) (*flowfile.Stream, error) {
	s, err := flowfile.New(flowfile.ModeRead, flowfile.ContentFlow, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Bind(path); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Open(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.ReadHeader(); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
