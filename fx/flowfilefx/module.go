// Package flowfilefx provides an fx module for opening flow-file
// streams wired to the application's logger and stats collector.
package flowfilefx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/flowgrid/flowfile"
	"github.com/flowgrid/flowfile/internal/stats"
	"github.com/flowgrid/flowfile/internal/stats/logger"
)

// Config holds configuration applied to every stream the opener
// creates.
type Config struct {
	// IPv6Policy filters or converts dual-stack records.
	IPv6Policy flowfile.IPv6Policy

	// Clobber lets write streams replace existing files.
	Clobber bool

	// BlockSize overrides the transport block size when positive.
	BlockSize int
}

// Module provides an *Opener.
// Requires a *zap.Logger to be provided.
var Module = fx.Module("flowfile",
	fx.Provide(
		newStatsCollector,
		newOpener,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("flowfile.stats"))
}

// Params holds dependencies for creating the opener.
type Params struct {
	fx.In

	Config    Config
	Logger    *zap.Logger
	Collector stats.Collector
}

// Opener creates streams that share one logger, stats collector, and
// stream configuration.
type Opener struct {
	opts []flowfile.Option
}

func newOpener(p Params) *Opener {
	opts := []flowfile.Option{
		flowfile.WithLogger(p.Logger.Named("flowfile")),
		flowfile.WithStats(p.Collector),
		flowfile.WithIPv6Policy(p.Config.IPv6Policy),
		flowfile.WithClobber(p.Config.Clobber),
	}
	if p.Config.BlockSize > 0 {
		opts = append(opts, flowfile.WithBlockSize(p.Config.BlockSize))
	}
	return &Opener{opts: opts}
}

// Reader opens path for reading flow records and consumes its header;
// the returned stream is ready for ReadRecord.
func (o *Opener) Reader(path string) (*flowfile.Stream, error) {
	s, err := flowfile.New(flowfile.ModeRead, flowfile.ContentFlow, o.opts...)
	if err != nil {
		return nil, err
	}
	if err := o.start(s, path); err != nil {
		return nil, err
	}
	if err := s.ReadHeader(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Writer opens path for writing flow records of the given format.  The
// header is left unwritten so the caller can set a record version,
// compression method, or header entries before WriteHeader.
func (o *Opener) Writer(path string, format flowfile.FileFormat) (*flowfile.Stream, error) {
	s, err := flowfile.New(flowfile.ModeWrite, flowfile.ContentFlow, o.opts...)
	if err != nil {
		return nil, err
	}
	if err := o.start(s, path); err != nil {
		return nil, err
	}
	if err := s.Header().SetFormat(format); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Appender opens an existing file so written records follow the ones
// already in it; the returned stream is ready for WriteRecord.
func (o *Opener) Appender(path string) (*flowfile.Stream, error) {
	s, err := flowfile.New(flowfile.ModeAppend, flowfile.ContentFlow, o.opts...)
	if err != nil {
		return nil, err
	}
	if err := o.start(s, path); err != nil {
		return nil, err
	}
	if err := s.ReadHeader(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (o *Opener) start(s *flowfile.Stream, path string) error {
	if err := s.Bind(path); err != nil {
		s.Close()
		return err
	}
	if err := s.Open(); err != nil {
		s.Close()
		return err
	}
	return nil
}
