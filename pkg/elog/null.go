package elog

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

// NullView discards all output. It is the default view of library callers
// that do not wire a terminal.
type NullView struct{}

func (NullView) Debugf(string, ...interface{}) {}
func (NullView) Errorf(string, ...interface{}) {}
func (NullView) Infof(string, ...interface{})  {}
func (NullView) Printf(string, ...interface{}) {}
func (NullView) Warnf(string, ...interface{})  {}
func (NullView) IsInfoEnabled() bool { return false }
func (NullView) IsDebugEnabled() bool { return false }

func (NullView) NewProgress(string, string, int64) Progress { return nullProgress{} }

type nullProgress struct{}

func (nullProgress) Increment(int64) {}
func (nullProgress) Finish(bool) {}
