package flowfile

import (
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/flowgrid/flowfile/internal/iobuf"
	"github.com/flowgrid/flowfile/internal/stats"
)

// Environment variables consulted for option defaults.  Each is read
// once, the first time a stream is created.
const (
	// EnvClobber, when set to a true value, makes streams overwrite
	// existing files by default.
	EnvClobber = "FLOWFILE_CLOBBER"

	// EnvICMPHandler controls the default handling of legacy ICMP
	// records whose type and code were stored in the source port.  The
	// fixup that moves them back to the destination port runs by
	// default; the value "none" disables it.
	EnvICMPHandler = "FLOWFILE_ICMP_SPORT_HANDLER"

	// EnvPager names the pager program used for paged text output
	// when no pager option is given.  PAGER is consulted as a
	// fallback.
	EnvPager = "FLOWFILE_PAGER"
)

// Option configures a Stream.
type Option interface {
	apply(*options)
}

// options holds the stream configuration.
type options struct {
	logger    *zap.Logger
	stats     stats.Collector
	clobber   bool
	v6Policy  IPv6Policy
	icmpFixup bool
	pager     string
	blockSize int
}

var (
	envOnce     sync.Once
	envDefaults options
)

// defaultOptions returns the default configuration, with the
// environment overrides applied.
func defaultOptions() options {
	envOnce.Do(func() {
		envDefaults = options{
			logger:    zap.NewNop(),
			stats:     stats.NewNoop(),
			v6Policy:  PolicyMix,
			icmpFixup: true,
			blockSize: iobuf.DefaultBlockSize,
		}
		if v, err := strconv.ParseBool(os.Getenv(EnvClobber)); err == nil {
			envDefaults.clobber = v
		}
		if os.Getenv(EnvICMPHandler) == "none" {
			envDefaults.icmpFixup = false
		}
		if p := os.Getenv(EnvPager); p != "" {
			envDefaults.pager = p
		} else {
			envDefaults.pager = os.Getenv("PAGER")
		}
	})
	return envDefaults
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithClobber allows a write-mode stream to replace an existing file.
// Without it, opening an existing path for write fails with
// ErrFileExists.
func WithClobber(clobber bool) Option {
	return optionFunc(func(o *options) {
		o.clobber = clobber
	})
}

// WithIPv6Policy sets how dual-stack records are filtered or converted
// as they pass through the stream.  Default is PolicyMix.
func WithIPv6Policy(p IPv6Policy) Option {
	return optionFunc(func(o *options) {
		o.v6Policy = p
	})
}

// WithLegacyICMPFixup controls rewriting of ICMP records whose type
// and code were recorded in the source port by old packing code.  The
// fixup is on by default; pass false to read those ports unchanged.
func WithLegacyICMPFixup(enable bool) Option {
	return optionFunc(func(o *options) {
		o.icmpFixup = enable
	})
}

// WithPager names the pager program for paged text output.  An empty
// string disables paging.
func WithPager(pager string) Option {
	return optionFunc(func(o *options) {
		o.pager = pager
	})
}

// WithBlockSize sets the uncompressed block size of the record
// transport.  Values are clamped to the transport's maximum.
func WithBlockSize(n int) Option {
	return optionFunc(func(o *options) {
		if n > iobuf.MaxBlockSize {
			n = iobuf.MaxBlockSize
		}
		o.blockSize = n
	})
}
