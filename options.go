package mirrorfs

import (
	"time"

	"github.com/mwantia/mirrorfs/data"
	"github.com/mwantia/mirrorfs/log"
)

type Options struct {
	Logger      *log.Logger
	WorkDir     string
	BatchWindow time.Duration
	Detector    BinaryDetector
}

type Option func(*Options) error

func newDefaultOptions() *Options {
	return &Options{
		Logger:      log.NewLogger("mirror", log.Info, ""),
		WorkDir:     "/",
		BatchWindow: DefaultBatchWindow,
		Detector:    DetectBinary,
	}
}

func WithLogLevel(logLevel log.LogLevel) Option {
	return func(opts *Options) error {
		opts.Logger.Level = logLevel
		return nil
	}
}

func WithLogFile(logFile string) Option {
	return func(opts *Options) error {
		opts.Logger = log.NewLogger("mirror", opts.Logger.Level, logFile)
		return nil
	}
}

func WithoutLogging() Option {
	return func(opts *Options) error {
		opts.Logger = log.Discard()
		return nil
	}
}

// WithWorkDir sets the absolute path the sandbox root is mounted at.
// Mirror paths below it are translated to sandbox-relative paths on
// write-through.
func WithWorkDir(workDir string) Option {
	return func(opts *Options) error {
		abs, err := data.ToAbsolutePath(workDir)
		if err != nil {
			return err
		}
		opts.WorkDir = abs
		return nil
	}
}

// WithBatchWindow sets the quiet window used to coalesce watch events.
func WithBatchWindow(window time.Duration) Option {
	return func(opts *Options) error {
		if window <= 0 {
			return data.ErrInvalid
		}
		opts.BatchWindow = window
		return nil
	}
}

// WithBinaryDetector replaces the binary classification oracle applied
// to file payloads.
func WithBinaryDetector(detect BinaryDetector) Option {
	return func(opts *Options) error {
		if detect == nil {
			return data.ErrInvalid
		}
		opts.Detector = detect
		return nil
	}
}
