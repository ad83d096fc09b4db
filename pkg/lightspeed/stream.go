package lightspeed

import (
	"context"
	"net/url"
	"strconv"

	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"
)

// Batch is one ordered chunk of records from a resource. Index is 1-based
// and increases by one per batch within a resource.
type Batch struct {
	Resource string
	Index    int
	Records  []Record
}

// StreamOptions controls how a resource is pulled from the API.
type StreamOptions struct {
	// Monolithic fetches the whole collection in a single oversized
	// request instead of walking pages.
	Monolithic bool

	// PageSize is the requested records per response. Zero picks the
	// strategy default.
	PageSize int

	// StartBatch is the first page to fetch in paged mode, for resuming.
	// Zero or one starts from the beginning. Ignored in monolithic mode.
	StartBatch int
}

// Stream pulls a resource's records batch by batch. Usage follows the
// scanner idiom: Next fetches and reports whether a batch is available,
// Batch returns it, Err explains a false Next. Exactly one batch is in
// flight; the next request is not issued until the caller comes back for it.
type Stream struct {
	client *Client
	res    resource.Resource
	opts   StreamOptions
	logger logger.Logger

	batch    Batch
	nextPage int
	done     bool
	err      error
}

// NewStream creates a stream over one resource. The stream does not retry;
// the first failed fetch ends it with the error exposed through Err.
func NewStream(client *Client, res resource.Resource, opts StreamOptions) *Stream {
	start := opts.StartBatch
	if start < 1 {
		start = 1
	}
	if opts.PageSize <= 0 {
		if opts.Monolithic {
			opts.PageSize = MonolithicPageSize
		} else {
			opts.PageSize = DefaultPageSize
		}
	}

	return &Stream{
		client:   client,
		res:      res,
		opts:     opts,
		logger:   client.logger,
		nextPage: start,
	}
}

// Next fetches the next batch. It returns false when the resource is
// exhausted, the context is cancelled, or a fetch fails; Err distinguishes
// the cases (nil means clean exhaustion).
func (s *Stream) Next(ctx context.Context) bool {
	if s.done || s.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}

	if s.opts.Monolithic {
		return s.fetchMonolithic(ctx)
	}
	return s.fetchPage(ctx)
}

// Batch returns the batch fetched by the last successful Next.
func (s *Stream) Batch() Batch {
	return s.batch
}

// Err returns the error that ended the stream, nil after clean exhaustion.
// Context cancellation surfaces here as the context's error.
func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) fetchMonolithic(ctx context.Context) bool {
	// One request covers the whole resource.
	s.done = true

	params := url.Values{}
	params.Set("page_size", strconv.Itoa(s.opts.PageSize))

	s.logger.InfoWithFields("fetching full resource", map[string]interface{}{
		"resource":  s.res.Name,
		"page_size": s.opts.PageSize,
	})

	records, err := s.client.Fetch(ctx, s.res, params)
	if err != nil {
		s.err = err
		return false
	}
	if len(records) == 0 {
		s.logger.InfoWithFields("no records returned", map[string]interface{}{
			"resource": s.res.Name,
		})
		return false
	}

	// Hitting the requested limit exactly means the API may have more
	// records than it returned.
	if len(records) == s.opts.PageSize {
		s.logger.WarnWithFields("record count equals the requested limit, data may be truncated", map[string]interface{}{
			"resource": s.res.Name,
			"records":  len(records),
		})
	}

	s.batch = Batch{Resource: s.res.Name, Index: 1, Records: records}
	return true
}

func (s *Stream) fetchPage(ctx context.Context) bool {
	params := url.Values{}
	params.Set("page", strconv.Itoa(s.nextPage))
	params.Set("page_size", strconv.Itoa(s.opts.PageSize))

	s.logger.DebugWithFields("fetching page", map[string]interface{}{
		"resource": s.res.Name,
		"page":     s.nextPage,
	})

	records, err := s.client.Fetch(ctx, s.res, params)
	if err != nil {
		s.err = err
		return false
	}
	if len(records) == 0 {
		s.done = true
		return false
	}

	s.batch = Batch{Resource: s.res.Name, Index: s.nextPage, Records: records}
	s.nextPage++

	// A short page is the last one.
	if len(records) < s.opts.PageSize {
		s.done = true
	}
	return true
}
