package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"github.com/pointgrid/pointgrid/pkg/cli"
)

func main() {
	cli.Execute()
}
