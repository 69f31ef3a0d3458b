/*-------------------------------------------------------------------------
 *
 * local.go
 *    LOCAL meadow driver for NeuronHive
 *
 * Runs workers as child processes on the beekeeper's own host. Process
 * liveness comes from the OS process table; there is no queue, so
 * pending counts are always empty and the slot limit is the configured
 * worker cap minus what is already running.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/meadow/local.go
 *
 *-------------------------------------------------------------------------
 */

package meadow

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

const LocalMeadowType = "LOCAL"

type LocalMeadow struct {
	name       string
	workerCmd  string
	maxWorkers int
}

/* NewLocalMeadow creates the LOCAL driver. workerCmd is the executable
 * (plus leading arguments) spawned per worker; maxWorkers caps the number
 * of concurrent local workers. */
func NewLocalMeadow(name, workerCmd string, maxWorkers int) *LocalMeadow {
	if maxWorkers < 1 {
		maxWorkers = 2
	}
	return &LocalMeadow{name: name, workerCmd: workerCmd, maxWorkers: maxWorkers}
}

func (m *LocalMeadow) Type() string {
	return LocalMeadowType
}

func (m *LocalMeadow) Name() string {
	return m.name
}

/* StatusOfAllOurWorkers scans the process table for workers spawned from
 * our worker command. Every process found is RUN; the local meadow has no
 * pending or suspended states. */
func (m *LocalMeadow) StatusOfAllOurWorkers(ctx context.Context) (map[string]ProcessStatus, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local processes: %w", err)
	}

	cmdName := m.workerCmdName()
	statuses := make(map[string]ProcessStatus)
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		if strings.Contains(cmdline, cmdName) {
			statuses[strconv.Itoa(int(p.Pid))] = ProcessRunning
		}
	}
	return statuses, nil
}

func (m *LocalMeadow) SubmitWorkers(ctx context.Context, rcName string, count int) error {
	parts := strings.Fields(m.workerCmd)
	if len(parts) == 0 {
		return fmt.Errorf("local meadow %q has no worker command configured", m.name)
	}

	for i := 0; i < count; i++ {
		args := append(parts[1:], "-rc_name", rcName)
		cmd := exec.CommandContext(ctx, parts[0], args...)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start local worker %d of %d: %w", i+1, count, err)
		}
		/* detach: the worker reports through the database, not the pipe */
		go func() { _ = cmd.Wait() }()
	}
	return nil
}

/* PendingWorkerCounts is always empty: local workers start immediately */
func (m *LocalMeadow) PendingWorkerCounts(ctx context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}

func (m *LocalMeadow) AvailableWorkerSlots(ctx context.Context) (int, error) {
	statuses, err := m.StatusOfAllOurWorkers(ctx)
	if err != nil {
		return 0, err
	}
	slots := m.maxWorkers - len(statuses)
	if slots < 0 {
		slots = 0
	}
	return slots, nil
}

func (m *LocalMeadow) workerCmdName() string {
	parts := strings.Fields(m.workerCmd)
	if len(parts) == 0 {
		return "hive-worker"
	}
	return parts[0]
}
