/*-------------------------------------------------------------------------
 *
 * main.go
 *    Main entry point for the NeuronHive activity profiler
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronHive/cmd/hive-profiler/main.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"fmt"
	"os"

	"github.com/neurondb/NeuronHive/cmd/hive-profiler/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
