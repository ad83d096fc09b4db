package export

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/checkpoint"
	"github.com/workingman/BCP-data-warehouse/pkg/config"
	"github.com/workingman/BCP-data-warehouse/pkg/exporter"
	"github.com/workingman/BCP-data-warehouse/pkg/lightspeed"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/ratelimit"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"
	"github.com/workingman/BCP-data-warehouse/pkg/retry"
)

// Progress receives run lifecycle events for terminal display. A nil
// Progress disables display; logging is separate and always on.
type Progress interface {
	ResourceStarted(position, total int, name string)
	BatchWritten(name string, batch, totalRecords int)
	ResourceFinished(result ResourceResult)
}

// Runner drives one export run: every resource in the plan, in declared
// order, one at a time. Completed resources are skipped, interrupted ones
// are resumed per the active fetch mode, failed ones are recorded and the
// run moves on.
type Runner struct {
	client     *lightspeed.Client
	writer     exporter.Writer
	checkpoint *checkpoint.Manager
	cfg        *config.Config
	plan       []resource.Resource
	exportDir  string
	logger     logger.Logger
	progress   Progress
}

// New assembles a runner bound to an export directory, building the client,
// writer, and checkpoint manager from configuration.
func New(cfg *config.Config, exportDir string) (*Runner, error) {
	client := lightspeed.NewClient(
		lightspeed.BaseURL(cfg.Lightspeed.Domain),
		cfg.Lightspeed.Token,
		cfg.Lightspeed.Timeout,
		newGate(&cfg.RateLimit),
		logger.GetLogger(),
	)
	return NewWithClient(cfg, exportDir, client)
}

// newGate builds the configured rate limiter. The sliding window counts
// whole requests, so fractional rates stretch the window instead.
func newGate(cfg *config.RateLimitConfig) ratelimit.Limiter {
	if strings.EqualFold(cfg.Limiter, "sliding_window") {
		requests := int(math.Ceil(cfg.RequestsPerSecond))
		window := time.Second
		if cfg.RequestsPerSecond < 1 {
			requests = 1
			window = time.Duration(float64(time.Second) / cfg.RequestsPerSecond)
		}
		return ratelimit.NewSlidingWindow(requests, window)
	}
	return ratelimit.NewTokenBucket(cfg.RequestsPerSecond, cfg.Burst)
}

// NewWithClient assembles a runner around an existing client. Tests use it
// to point the runner at a local test server.
func NewWithClient(cfg *config.Config, exportDir string, client *lightspeed.Client) (*Runner, error) {
	plan, err := resource.Select(cfg.Export.Resources)
	if err != nil {
		return nil, err
	}

	writer, err := exporter.New(cfg.Export.Format, exportDir, logger.GetLogger())
	if err != nil {
		return nil, err
	}

	return &Runner{
		client:     client,
		writer:     writer,
		checkpoint: checkpoint.NewManager(exportDir),
		cfg:        cfg,
		plan:       plan,
		exportDir:  exportDir,
		logger:     logger.GetLogger(),
	}, nil
}

// SetProgress attaches a display for run lifecycle events.
func (r *Runner) SetProgress(p Progress) {
	r.progress = p
}

// Plan returns the resources this runner will export, in order.
func (r *Runner) Plan() []resource.Resource {
	return r.plan
}

// Run executes the export plan. The returned error covers setup failures
// only; per-resource outcomes, including failures, live in the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	lock, err := Acquire(r.exportDir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	// The directory carries a checkpoint before any resource starts, so an
	// interruption at any point leaves it discoverable for resume.
	if !r.checkpoint.Exists() {
		if err := r.checkpoint.Persist(); err != nil {
			return nil, fmt.Errorf("failed to initialize checkpoint: %w", err)
		}
	}

	report := &Report{
		ExportDir: r.exportDir,
		StartedAt: time.Now(),
	}

	r.logger.InfoWithFields("Starting export run", map[string]interface{}{
		"export_dir": r.exportDir,
		"resources":  len(r.plan),
		"format":     r.cfg.Export.Format,
		"monolithic": r.cfg.Export.Monolithic,
	})

	for i, res := range r.plan {
		if ctx.Err() != nil {
			report.Stopped = true
			break
		}

		if r.checkpoint.IsComplete(res.Name) {
			r.logger.InfoWithFields("Skipping completed resource", map[string]interface{}{
				"resource": res.Name,
			})
			result := ResourceResult{Resource: res.Name, Status: StatusSkipped}
			report.add(result)
			if r.progress != nil {
				r.progress.ResourceFinished(result)
			}
			continue
		}

		if r.progress != nil {
			r.progress.ResourceStarted(i+1, len(r.plan), res.Name)
		}

		result := r.exportResource(ctx, res)
		report.add(result)
		if r.progress != nil {
			r.progress.ResourceFinished(result)
		}

		if result.Status == StatusStopped {
			report.Stopped = true
			break
		}
	}

	report.Duration = time.Since(report.StartedAt)
	if ctx.Err() != nil {
		report.Stopped = true
	}

	// The terminal flag flips only when the whole plan settled cleanly.
	if !report.Stopped && report.allSettled(len(r.plan)) {
		if err := r.checkpoint.MarkExportComplete(); err != nil {
			r.logger.WithError(err).Error("Failed to mark export complete")
		}
	}
	report.Complete = r.checkpoint.IsExportComplete()

	if summaries, err := r.writer.Summary(); err == nil {
		report.Files = summaries
	}

	if err := r.writer.Close(); err != nil {
		r.logger.WithError(err).Warn("Failed to close output files")
	}

	completed, skipped, failed, stopped := report.Counts()
	r.logger.InfoWithFields("Export run finished", map[string]interface{}{
		"completed":       completed,
		"skipped":         skipped,
		"failed":          failed,
		"stopped":         stopped,
		"records":         report.TotalRecords(),
		"duration":        report.Duration.String(),
		"export_complete": report.Complete,
	})

	return report, nil
}

// exportResource runs one resource to a terminal status. Transient fetch
// failures are retried with backoff; each retry re-enters through the
// checkpoint, so progress made before the failure is not refetched in
// paged mode.
func (r *Runner) exportResource(ctx context.Context, res resource.Resource) ResourceResult {
	result := ResourceResult{Resource: res.Name}

	retryCfg := &retry.Config{
		MaxAttempts: r.cfg.Retry.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    r.cfg.Retry.InitialDelay,
			MaxDelay:     r.cfg.Retry.MaxDelay,
			Multiplier:   r.cfg.Retry.Multiplier,
			JitterFactor: 0.1,
		},
		RetryIf: retry.DefaultRetryIf,
		Context: ctx,
		Logger:  r.logger,
	}

	err := retry.Do(func() error {
		return r.streamResource(ctx, res, &result)
	}, retryCfg)

	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			result.Status = StatusStopped
			r.logger.InfoWithFields("Export interrupted, progress saved", map[string]interface{}{
				"resource": res.Name,
				"batches":  result.Batches,
				"records":  result.Records,
			})
			return result
		}

		result.Status = StatusFailed
		result.Err = err
		if res.Optional() {
			r.logger.WarnWithFields("Optional resource failed, it may not be enabled for this account", map[string]interface{}{
				"resource": res.Name,
				"error":    err.Error(),
			})
		} else {
			logger.LogResourceExport(res.Name, result.Records, false, err)
		}
		return result
	}

	result.Status = StatusCompleted
	logger.LogResourceExport(res.Name, result.Records, true, nil)
	return result
}

// streamResource performs one attempt at exporting a resource: pick the
// write mode from the checkpoint, stream batches, persist a marker after
// every durable write, and mark the resource complete on clean exhaustion.
func (r *Runner) streamResource(ctx context.Context, res resource.Resource, result *ResourceResult) error {
	marker := r.checkpoint.GetPartial(res.Name)

	opts := lightspeed.StreamOptions{
		Monolithic: r.cfg.Export.Monolithic,
		PageSize:   r.cfg.Export.PageSize,
	}

	// written tracks records durably on disk for this resource, including
	// those from interrupted runs; it is what the marker records.
	written := 0

	if opts.Monolithic {
		// A monolithic fetch returns the whole resource again, so any
		// partial progress is discarded and the file restarts fresh.
		if marker != nil {
			r.logger.InfoWithFields("Restarting interrupted resource, full fetch replaces partial data", map[string]interface{}{
				"resource":          res.Name,
				"discarded_records": marker.RecordCount,
			})
			if err := r.checkpoint.ClearPartial(res.Name); err != nil {
				return err
			}
			result.Records = 0
			result.Batches = 0
		}
		if err := r.writer.Init(res); err != nil {
			return err
		}
	} else if marker != nil {
		opts.StartBatch = marker.LastBatch + 1
		written = marker.RecordCount
		if err := r.writer.Resume(res); err != nil {
			return err
		}
		r.logger.InfoWithFields("Resuming interrupted resource", map[string]interface{}{
			"resource":    res.Name,
			"start_batch": opts.StartBatch,
			"records":     written,
		})
	} else {
		if err := r.writer.Init(res); err != nil {
			return err
		}
	}

	stream := lightspeed.NewStream(r.client, res, opts)
	for stream.Next(ctx) {
		batch := stream.Batch()

		n, err := r.writer.Append(res, batch.Records)
		if err != nil {
			return err
		}
		written += n
		result.Records += n
		result.Batches++

		// Marker follows the write; it never gets ahead of the data.
		if err := r.checkpoint.SavePartial(res.Name, batch.Index, written); err != nil {
			return err
		}

		logger.LogBatchProgress(res.Name, batch.Index, written)
		if r.progress != nil {
			r.progress.BatchWritten(res.Name, batch.Index, written)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}

	return r.checkpoint.MarkComplete(res.Name)
}
