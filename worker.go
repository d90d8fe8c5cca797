package main

import (
	"context"
	"errors"
	"fmt"
)

// TaskProcessor turns a file's content into task records. Implementations
// must be interchangeable: the produced tasks are identical whether
// parsing ran inline or was offloaded.
type TaskProcessor interface {
	ProcessFile(ctx context.Context, path, content string) ([]*Task, error)
}

// InlineProcessor parses synchronously on the calling goroutine.
type InlineProcessor struct {
	Opts ParseOptions
}

func (p *InlineProcessor) ProcessFile(_ context.Context, path, content string) ([]*Task, error) {
	return ParseContent(path, content, p.Opts), nil
}

// ErrPoolClosed is returned when a job is submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

type parseJob struct {
	path    string
	content string
	reply   chan parseResult
}

type parseResult struct {
	tasks []*Task
	err   error
}

// PoolProcessor offloads parsing to a bounded pool of worker goroutines.
// Workers exchange only task values, never references into the index.
type PoolProcessor struct {
	opts ParseOptions
	jobs chan parseJob
	done chan struct{}
}

// NewPoolProcessor starts workers goroutines ready to parse files.
func NewPoolProcessor(workers int, opts ParseOptions) *PoolProcessor {
	if workers < 1 {
		workers = 1
	}
	p := &PoolProcessor{
		opts: opts,
		jobs: make(chan parseJob),
		done: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *PoolProcessor) worker() {
	for {
		select {
		case job := <-p.jobs:
			job.reply <- p.run(job)
		case <-p.done:
			return
		}
	}
}

// run executes one parse job, converting a worker panic into an error so
// a bad file degrades to inline parsing instead of killing the pool.
func (p *PoolProcessor) run(job parseJob) (result parseResult) {
	defer func() {
		if r := recover(); r != nil {
			result = parseResult{err: fmt.Errorf("worker panic: %v", r)}
		}
	}()
	return parseResult{tasks: ParseContent(job.path, job.content, p.opts)}
}

func (p *PoolProcessor) ProcessFile(ctx context.Context, path, content string) ([]*Task, error) {
	job := parseJob{path: path, content: content, reply: make(chan parseResult, 1)}

	select {
	case p.jobs <- job:
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.reply:
		return res.tasks, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers. In-flight jobs finish; later submissions fail.
func (p *PoolProcessor) Close() {
	close(p.done)
}

// FallbackProcessor tries the primary processor and falls back to the
// secondary when it fails. Failures are per-file: one bad offload never
// aborts a batch.
type FallbackProcessor struct {
	Primary   TaskProcessor
	Secondary TaskProcessor
}

func (p *FallbackProcessor) ProcessFile(ctx context.Context, path, content string) ([]*Task, error) {
	tasks, err := p.Primary.ProcessFile(ctx, path, content)
	if err == nil {
		return tasks, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return p.Secondary.ProcessFile(ctx, path, content)
}
