package lakecat

import (
	"github.com/hupe1980/lakecat/codec"
	"github.com/hupe1980/lakecat/dataset"
	"github.com/hupe1980/lakecat/resource"
)

type options struct {
	codec  codec.Codec
	logger *Logger
	opener dataset.SourceOpener
	res    *resource.Controller
}

// Option configures Service constructor behavior.
//
// Today options primarily exist to avoid exploding the API surface
// (e.g. codec-specific constructor variants).
type Option func(*options)

// WithCodec configures the codec used for manifests, chunk frames and the
// catalog snapshot.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures structured logging. If nil is passed, a text
// logger to stderr at info level is used.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NewLogger(nil)
		}
		o.logger = l
	}
}

// WithSourceOpener configures how registration resolves storage URLs into
// readable recordings. The default reads codec-encoded recording blobs
// from the service's blob store.
func WithSourceOpener(opener dataset.SourceOpener) Option {
	return func(o *options) {
		o.opener = opener
	}
}

// WithResourceLimits configures throttling for background work (index
// builds, maintenance, bulk chunk IO). Without it background work runs
// unthrottled on a single worker slot.
func WithResourceLimits(cfg resource.Config) Option {
	return func(o *options) {
		o.res = resource.NewController(cfg)
	}
}
