package elog

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"bytes"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// Logger is an interface that has the ability to hide debug/info output.
type Logger interface {
	Debugf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Printf(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	IsInfoEnabled() bool
	IsDebugEnabled() bool
}

// Progress is a handle on one long-running operation's progress bar.
type Progress interface {
	Increment(n int64)
	Finish(success bool)
}

// ProgressReporter creates progress objects. Units is a display hint, e.g.
// "points" or "tiles"; a zero total yields a spinner.
type ProgressReporter interface {
	NewProgress(label string, units string, total int64) Progress
}

// View is what the long-running core operations accept: a logger plus the
// ability to report progress.
type View interface {
	Logger
	ProgressReporter
}

// CLI is the terminal implementation of View.
type CLI struct {
	DisableTTY bool
	IsDebug    bool
	IsVerbose  bool

	lock               sync.Mutex
	isTrackingProgress bool
	bars               map[*mpb.Bar]bool
	buffer             *bytes.Buffer
	progressContainer  *mpb.Progress
}

// Debugf executes logrus.Tracef if debug is enabled.
func (log *CLI) Debugf(format string, x ...interface{}) {
	if log.IsDebug {
		logrus.Tracef(format, x...)
	}
}

// Errorf wraps logrus.Errorf.
func (log *CLI) Errorf(format string, x ...interface{}) {
	logrus.Errorf(format, x...)
}

// Infof executes logrus.Debugf only if verbose is enabled.
func (log *CLI) Infof(format string, x ...interface{}) {
	if log.IsVerbose {
		logrus.Debugf(format, x...)
	}
}

// Printf wraps logrus.Printf.
func (log *CLI) Printf(format string, x ...interface{}) {
	logrus.Printf(format, x...)
}

// Warnf wraps logrus.Warnf.
func (log *CLI) Warnf(format string, x ...interface{}) {
	logrus.Warnf(format, x...)
}

// IsInfoEnabled returns whether InfoLevel logging is enabled.
func (log *CLI) IsInfoEnabled() bool {
	return logrus.IsLevelEnabled(logrus.InfoLevel)
}

// IsDebugEnabled returns whether DebugLevel logging is enabled.
func (log *CLI) IsDebugEnabled() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

// NewProgress creates a progress bar. While any bar is live, logrus output is
// buffered so log lines do not tear the bars, and flushed when the last bar
// finishes.
func (log *CLI) NewProgress(label string, units string, total int64) Progress {
	if log.DisableTTY {
		return &nilProgress{}
	}

	log.lock.Lock()
	defer log.lock.Unlock()

	if !log.isTrackingProgress {
		log.isTrackingProgress = true
		log.buffer = new(bytes.Buffer)
		logrus.SetOutput(log.buffer)
		log.progressContainer = mpb.New(mpb.WithWidth(80))
		log.bars = make(map[*mpb.Bar]bool)
	}

	var appendDecorators []decor.Decorator
	switch units {
	case "":
		appendDecorators = append(appendDecorators, decor.Percentage())
	default:
		appendDecorators = append(appendDecorators, decor.CountersNoUnit("% d / % d "), decor.Name(units))
	}

	var bar *mpb.Bar
	if total == 0 {
		bar = log.progressContainer.AddSpinner(0, mpb.SpinnerOnLeft,
			mpb.PrependDecorators(
				decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DidentRight}),
			),
		)
	} else {
		bar = log.progressContainer.AddBar(total,
			mpb.PrependDecorators(
				decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DidentRight}),
				decor.OnComplete(
					decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "done",
				),
			),
			mpb.AppendDecorators(appendDecorators...),
		)
	}
	log.bars[bar] = true

	p := &progressBar{
		log:      log,
		bar:      bar,
		total:    total,
		interval: time.Millisecond * 100,
	}
	p.nextUpdate = time.Now().Add(p.interval)
	return p
}

type nilProgress struct{}

func (np *nilProgress) Increment(int64) {}
func (np *nilProgress) Finish(bool) {}

type progressBar struct {
	log    *CLI
	bar    *mpb.Bar
	closed bool
	total  int64
	count  int64

	mu         sync.Mutex
	buffered   int64
	interval   time.Duration
	nextUpdate time.Time
}

// Increment advances the bar. Safe for concurrent workers; updates are
// batched to one flush per interval because increments arrive per point.
func (p *progressBar) Increment(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffered += n
	p.count += n
	if !time.Now().Before(p.nextUpdate) {
		p.flush()
	}
}

// flush is called with mu held.
func (p *progressBar) flush() {
	p.nextUpdate = time.Now().Add(p.interval)
	p.bar.IncrInt64(p.buffered)
	p.buffered = 0
}

// Finish closes the bar and, if it was the last live one, releases the
// buffered log output.
func (p *progressBar) Finish(success bool) {
	if p.closed {
		return
	}
	p.mu.Lock()
	p.flush()
	count := p.count
	p.mu.Unlock()
	p.closed = true
	if count != p.total || p.total == 0 || !success {
		p.bar.Abort(false)
	}

	p.log.lock.Lock()
	defer p.log.lock.Unlock()
	delete(p.log.bars, p.bar)

	if len(p.log.bars) == 0 {
		p.log.bars = nil
		p.log.isTrackingProgress = false
		p.log.progressContainer.Wait()
		p.log.progressContainer = nil
		logrus.SetOutput(os.Stdout)
		_, _ = p.log.buffer.WriteTo(os.Stdout)
		p.log.buffer = nil
	}
}
