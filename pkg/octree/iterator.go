package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"io"
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"github.com/pointgrid/pointgrid/pkg/point"
)

// ParallelIterator streams the points selected by a query across one or more
// trees. N workers pop node ids from a shared queue, decode and filter one
// node at a time, splice the survivors into per-worker accumulators of
// batchSize points and push full batches through a channel of bufferSize
// capacity. A single consumer drains the channel, so memory is bounded by
// numThreads*batchSize + bufferSize*batchSize points.
type ParallelIterator struct {
	trees      []*Tree
	query      *PointQuery
	batchSize  int
	numThreads int
	bufferSize int
}

// NewParallelIterator sets up a parallel traversal. Zero values pick the
// defaults: NumPointsPerBatch, GOMAXPROCS workers and a buffer of 4 batches.
func NewParallelIterator(trees []*Tree, query *PointQuery, batchSize, numThreads, bufferSize int) *ParallelIterator {
	if batchSize <= 0 {
		batchSize = NumPointsPerBatch
	}
	if numThreads <= 0 {
		numThreads = runtime.GOMAXPROCS(0)
	}
	if bufferSize <= 0 {
		bufferSize = 4
	}
	return &ParallelIterator{
		trees:      trees,
		query:      query,
		batchSize:  batchSize,
		numThreads: numThreads,
		bufferSize: bufferSize,
	}
}

type nodeJob struct {
	tree *Tree
	id   NodeId
}

// pointStream accumulates filtered batches and emits them in batchSize
// chunks. One stream per worker, not per node, so the emitted batches stay
// full across small nodes.
type pointStream struct {
	buf       *point.PointsBatch
	batchSize int
	emit      func(*point.PointsBatch) error
}

func newPointStream(batchSize int, emit func(*point.PointsBatch) error) *pointStream {
	return &pointStream{buf: point.NewPointsBatch(), batchSize: batchSize, emit: emit}
}

func (s *pointStream) flushOne() error {
	if s.buf.Len() == 0 {
		return nil
	}
	at := s.batchSize
	if s.buf.Len() < at {
		at = s.buf.Len()
	}
	rest := s.buf.SplitOff(at)
	full := s.buf
	s.buf = rest
	return s.emit(full)
}

func (s *pointStream) push(batch *point.PointsBatch) error {
	if err := s.buf.Append(batch); err != nil {
		return err
	}
	for s.buf.Len() >= s.batchSize {
		if err := s.flushOne(); err != nil {
			return err
		}
	}
	return nil
}

// TryForEachBatch visits every selected point at least once, delivering
// aligned batches to callback on the calling goroutine. Batch order across
// nodes is unspecified. A callback error cancels the traversal promptly and
// is returned; traversal I/O errors are returned likewise.
func (it *ParallelIterator) TryForEachBatch(callback func(*point.PointsBatch) error) error {
	var jobs []nodeJob
	for _, tree := range it.trees {
		for _, id := range tree.NodesInLocation(&it.query.Location) {
			jobs = append(jobs, nodeJob{tree: tree, id: id})
		}
	}

	jobQueue := make(chan nodeJob, len(jobs))
	for _, job := range jobs {
		jobQueue <- job
	}
	close(jobQueue)

	delivery := make(chan *point.PointsBatch, it.bufferSize)
	done := make(chan struct{})

	var workerErr error
	var workerErrOnce sync.Once
	var wg sync.WaitGroup
	for i := 0; i < it.numThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			send := func(batch *point.PointsBatch) error {
				select {
				case delivery <- batch:
					return nil
				case <-done:
					return errors.WithStack(point.ErrChannelClosed)
				}
			}
			stream := newPointStream(it.batchSize, send)
			for job := range jobQueue {
				err := it.drainNode(job, stream)
				if err == nil {
					continue
				}
				if point.IsChannelClosed(err) {
					// The consumer gave up; abandon the current batch.
					return
				}
				workerErrOnce.Do(func() { workerErr = err })
				return
			}
			if err := stream.flushOne(); err != nil && !point.IsChannelClosed(err) {
				workerErrOnce.Do(func() { workerErr = err })
			}
		}()
	}

	go func() {
		wg.Wait()
		close(delivery)
	}()

	var callbackErr error
	for batch := range delivery {
		if callbackErr != nil {
			continue // drain remaining in-flight batches
		}
		if err := callback(batch); err != nil {
			callbackErr = err
			close(done)
		}
	}
	if callbackErr != nil {
		return callbackErr
	}
	return workerErr
}

func (it *ParallelIterator) drainNode(job nodeJob, stream *pointStream) error {
	filtered, err := job.tree.PointsInNode(it.query, job.id, it.batchSize)
	if err != nil {
		return err
	}
	defer filtered.Close()
	for {
		batch, err := filtered.NextBatch()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := stream.push(batch); err != nil {
			return err
		}
	}
}
