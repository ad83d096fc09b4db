package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/workingman/BCP-data-warehouse/pkg/exporter"
	"github.com/workingman/BCP-data-warehouse/pkg/lightspeed"
	"github.com/workingman/BCP-data-warehouse/pkg/logger"
	"github.com/workingman/BCP-data-warehouse/pkg/resource"
)

// batchSize is how many decoded records accumulate before a CSV append.
const batchSize = 500

// Job is one JSONL file to convert.
type Job struct {
	Resource resource.Resource
	Path     string
}

// Result represents the outcome of a conversion job
type Result struct {
	Job      Job
	Records  int
	Success  bool
	Error    error
	Duration time.Duration
}

// Pool converts resource files with a fixed set of workers, one resource per
// job. Workers write disjoint output files, so they share nothing beyond the
// queues.
type Pool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	csvDir      string
	logger      logger.Logger
}

// NewPool creates a conversion worker pool writing into csvDir.
func NewPool(numWorkers int, csvDir string, log logger.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.GetLogger()
	}

	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		csvDir:      csvDir,
		logger:      log,
	}
}

// Start initializes and starts all workers
func (p *Pool) Start() {
	p.logger.InfoWithFields("Starting conversion pool", map[string]interface{}{
		"num_workers": p.numWorkers,
		"csv_dir":     p.csvDir,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the job queue, waits for in-flight conversions, and closes the
// result queue.
func (p *Pool) Stop() {
	close(p.jobQueue)
	p.wg.Wait()
	close(p.resultQueue)
	p.cancel()

	p.logger.Info("Conversion pool stopped")
}

// Submit adds a conversion job to the queue.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobQueue <- job:
		p.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"resource": job.Resource.Name,
			"path":     job.Path,
		})
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("conversion pool is shutting down")
	}
}

// Results returns the result channel for consuming conversion results
func (p *Pool) Results() <-chan Result {
	return p.resultQueue
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		result := p.convertResource(job, id)

		select {
		case p.resultQueue <- result:
		case <-p.ctx.Done():
			return
		}
	}
}

// convertResource streams one JSONL file through the CSV writer. The field
// tables drop the _exported_at stamp and the nested child arrays from the
// parent rows; child rows land in their own files.
func (p *Pool) convertResource(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	f, err := os.Open(job.Path)
	if err != nil {
		result.Error = fmt.Errorf("failed to open %s: %w", job.Path, err)
		result.Duration = time.Since(start)
		return result
	}
	defer f.Close()

	writer := exporter.NewCSVWriter(p.csvDir, p.logger)
	if err := writer.Init(job.Resource); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	// UseNumber keeps the upstream numeric text instead of rounding
	// through float64.
	dec := json.NewDecoder(f)
	dec.UseNumber()

	batch := make([]lightspeed.Record, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := writer.Append(job.Resource, batch)
		if err != nil {
			return err
		}
		result.Records += n
		batch = batch[:0]
		return nil
	}

	for {
		var record lightspeed.Record
		if err := dec.Decode(&record); err == io.EOF {
			break
		} else if err != nil {
			writer.Close()
			result.Error = fmt.Errorf("malformed record in %s: %w", filepath.Base(job.Path), err)
			result.Duration = time.Since(start)
			return result
		}

		batch = append(batch, record)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				writer.Close()
				result.Error = err
				result.Duration = time.Since(start)
				return result
			}
		}
	}

	if err := flush(); err != nil {
		writer.Close()
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}
	if err := writer.Close(); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)

	p.logger.DebugWithFields("Worker converted resource", map[string]interface{}{
		"worker_id": workerID,
		"resource":  job.Resource.Name,
		"records":   result.Records,
		"duration":  result.Duration,
	})

	return result
}
