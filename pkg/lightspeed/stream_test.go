package lightspeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/errors"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedHandler serves total records in page_size chunks the way the API
// does it, so stream tests exercise real pagination arithmetic.
func pagedHandler(total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

		start := (page - 1) * size
		records := []interface{}{}
		for i := start; i < total && i < start+size; i++ {
			records = append(records, map[string]interface{}{"id": fmt.Sprintf("rec-%d", i)})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": records})
	}
}

func collect(t *testing.T, s *Stream) []Batch {
	t.Helper()
	var batches []Batch
	for s.Next(context.Background()) {
		batches = append(batches, s.Batch())
	}
	return batches
}

func TestStreamMonolithic(t *testing.T) {
	requests := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "", r.URL.Query().Get("page"), "monolithic mode must not paginate")
		assert.Equal(t, strconv.Itoa(MonolithicPageSize), r.URL.Query().Get("page_size"))
		pagedHandler(120)(w, r)
	})

	res, _ := resource.Lookup("customers")
	stream := NewStream(client, res, StreamOptions{Monolithic: true})

	batches := collect(t, stream)
	require.NoError(t, stream.Err())
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].Index)
	assert.Equal(t, "customers", batches[0].Resource)
	assert.Len(t, batches[0].Records, 120)
	assert.Equal(t, 1, requests)
}

func TestStreamMonolithicTruncationWarning(t *testing.T) {
	client, _ := testClient(t, pagedHandler(40))

	log := logger.NewTestLogger()
	client.logger = log

	res, _ := resource.Lookup("customers")
	stream := NewStream(client, res, StreamOptions{Monolithic: true, PageSize: 40})

	batches := collect(t, stream)
	require.NoError(t, stream.Err())
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Records, 40)

	warned := false
	for _, msg := range log.GetMessagesByLevel("WARN") {
		if msg.Fields["resource"] == "customers" {
			warned = true
		}
	}
	assert.True(t, warned, "hitting the requested limit exactly should log a warning")
}

func TestStreamMonolithicEmpty(t *testing.T) {
	client, _ := testClient(t, pagedHandler(0))

	res, _ := resource.Lookup("outlets")
	stream := NewStream(client, res, StreamOptions{Monolithic: true})

	assert.False(t, stream.Next(context.Background()))
	assert.NoError(t, stream.Err())
}

func TestStreamPaged(t *testing.T) {
	client, _ := testClient(t, pagedHandler(250))

	res, _ := resource.Lookup("sales")
	stream := NewStream(client, res, StreamOptions{PageSize: 100})

	batches := collect(t, stream)
	require.NoError(t, stream.Err())
	require.Len(t, batches, 3)

	assert.Equal(t, 1, batches[0].Index)
	assert.Equal(t, 2, batches[1].Index)
	assert.Equal(t, 3, batches[2].Index)
	assert.Len(t, batches[0].Records, 100)
	assert.Len(t, batches[1].Records, 100)
	assert.Len(t, batches[2].Records, 50, "short page ends the stream")

	// Records must arrive in order with no overlap
	assert.Equal(t, "rec-0", batches[0].Records[0]["id"])
	assert.Equal(t, "rec-100", batches[1].Records[0]["id"])
	assert.Equal(t, "rec-249", batches[2].Records[49]["id"])
}

func TestStreamPagedExactBoundary(t *testing.T) {
	// 200 records at page size 100: the second page is full, so a third
	// request is needed to observe exhaustion.
	requests := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		pagedHandler(200)(w, r)
	})

	res, _ := resource.Lookup("sales")
	stream := NewStream(client, res, StreamOptions{PageSize: 100})

	batches := collect(t, stream)
	require.NoError(t, stream.Err())
	assert.Len(t, batches, 2)
	assert.Equal(t, 3, requests)
}

func TestStreamPagedResume(t *testing.T) {
	var pages []string
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		pages = append(pages, r.URL.Query().Get("page"))
		pagedHandler(250)(w, r)
	})

	res, _ := resource.Lookup("sales")
	stream := NewStream(client, res, StreamOptions{PageSize: 100, StartBatch: 3})

	batches := collect(t, stream)
	require.NoError(t, stream.Err())
	require.Len(t, batches, 1)
	assert.Equal(t, 3, batches[0].Index)
	assert.Equal(t, "rec-200", batches[0].Records[0]["id"])
	assert.Equal(t, []string{"3"}, pages)
}

func TestStreamStopsOnError(t *testing.T) {
	requests := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		pagedHandler(500)(w, r)
	})

	res, _ := resource.Lookup("sales")
	stream := NewStream(client, res, StreamOptions{PageSize: 100})

	ctx := context.Background()
	assert.True(t, stream.Next(ctx))
	assert.False(t, stream.Next(ctx))

	var apiErr *errors.Error
	require.ErrorAs(t, stream.Err(), &apiErr)
	assert.Equal(t, errors.ErrorTypeServerError, apiErr.Type)

	// A failed stream stays failed
	assert.False(t, stream.Next(ctx))
	assert.Equal(t, 2, requests)
}

func TestStreamCanceledBetweenBatches(t *testing.T) {
	client, _ := testClient(t, pagedHandler(500))

	res, _ := resource.Lookup("sales")
	stream := NewStream(client, res, StreamOptions{PageSize: 100})

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, stream.Next(ctx))
	first := stream.Batch()
	assert.Len(t, first.Records, 100)

	cancel()
	assert.False(t, stream.Next(ctx))
	assert.ErrorIs(t, stream.Err(), context.Canceled)
}

func TestStreamDefaultPageSizes(t *testing.T) {
	tests := []struct {
		name string
		opts StreamOptions
		want int
	}{
		{"monolithic default", StreamOptions{Monolithic: true}, MonolithicPageSize},
		{"paged default", StreamOptions{}, DefaultPageSize},
		{"explicit wins", StreamOptions{Monolithic: true, PageSize: 500}, 500},
	}

	client := NewClient("https://example.com/api/2.0", "token", time.Second, openGate(), logger.NewTestLogger())
	res, _ := resource.Lookup("outlets")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := NewStream(client, res, tt.opts)
			assert.Equal(t, tt.want, stream.opts.PageSize)
		})
	}
}
