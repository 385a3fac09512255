// Package leadimport drives an uploaded lead file from ingestion through
// column mapping, duplicate classification and human resolution of soft
// duplicates.
package leadimport

import (
	"time"

	"github.com/sells-group/lead-import/internal/dedupe"
	"github.com/sells-group/lead-import/internal/store"
)

// Listing bounds.
const (
	MaxPreviewLimit = 200
	MaxPageSize     = 100
	DefaultPageSize = 25
)

// DefaultMaxFileBytes caps uploads when Options leaves it unset.
const DefaultMaxFileBytes int64 = 50 << 20

// Options tunes a Service.
type Options struct {
	MaxFileBytes    int64
	DefaultPageSize int
}

// Service runs import operations against a Store. Every mutation happens in
// a store transaction.
type Service struct {
	store   store.Store
	matcher *dedupe.Matcher
	opts    Options
	now     func() time.Time
}

// NewService creates a Service. A nil matcher uses the default dedupe settings.
func NewService(st store.Store, matcher *dedupe.Matcher, opts Options) *Service {
	if matcher == nil {
		matcher = dedupe.NewMatcher(dedupe.Config{})
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	if opts.DefaultPageSize <= 0 || opts.DefaultPageSize > MaxPageSize {
		opts.DefaultPageSize = DefaultPageSize
	}
	return &Service{
		store:   st,
		matcher: matcher,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}
