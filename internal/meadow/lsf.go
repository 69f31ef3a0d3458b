/*-------------------------------------------------------------------------
 *
 * lsf.go
 *    LSF meadow driver for NeuronHive
 *
 * Talks to an LSF cluster through bsub/bjobs/bacct. Submitted workers
 * carry a job name of the form <meadow_name>-Hive-<rc_name> so that
 * status and pending counts can be recovered per resource class. The
 * command runner is injected so the driver can be exercised without a
 * cluster.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/meadow/lsf.go
 *
 *-------------------------------------------------------------------------
 */

package meadow

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/neurondb/NeuronHive/internal/db"
)

const LSFMeadowType = "LSF"

/* CommandRunner executes an external command and returns its stdout */
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

type LSFMeadow struct {
	name      string
	queue     string
	workerCmd string
	maxJobs   int
	run       CommandRunner
}

func NewLSFMeadow(name, queue, workerCmd string, maxJobs int) *LSFMeadow {
	return &LSFMeadow{name: name, queue: queue, workerCmd: workerCmd, maxJobs: maxJobs, run: execRunner}
}

/* NewLSFMeadowWithRunner injects a command runner for tests */
func NewLSFMeadowWithRunner(name, queue, workerCmd string, maxJobs int, run CommandRunner) *LSFMeadow {
	return &LSFMeadow{name: name, queue: queue, workerCmd: workerCmd, maxJobs: maxJobs, run: run}
}

func (m *LSFMeadow) Type() string {
	return LSFMeadowType
}

func (m *LSFMeadow) Name() string {
	return m.name
}

func (m *LSFMeadow) jobNamePrefix() string {
	return m.name + "-Hive-"
}

/* StatusOfAllOurWorkers parses `bjobs -w -noheader` output. Expected
 * columns: JOBID USER STAT QUEUE FROM_HOST EXEC_HOST JOB_NAME ... */
func (m *LSFMeadow) StatusOfAllOurWorkers(ctx context.Context) (map[string]ProcessStatus, error) {
	out, err := m.run(ctx, "bjobs", "-w", "-noheader")
	if err != nil {
		return nil, fmt.Errorf("bjobs failed on meadow %q: %w", m.name, err)
	}

	statuses := make(map[string]ProcessStatus)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 7 {
			continue
		}
		jobID, stat, jobName := fields[0], fields[2], fields[6]
		if !strings.HasPrefix(jobName, m.jobNamePrefix()) {
			continue
		}
		switch stat {
		case "RUN":
			statuses[jobID] = ProcessRunning
		case "PEND":
			statuses[jobID] = ProcessPending
		case "SSUSP", "USUSP", "PSUSP":
			statuses[jobID] = ProcessSuspended
		}
	}
	return statuses, nil
}

func (m *LSFMeadow) SubmitWorkers(ctx context.Context, rcName string, count int) error {
	jobName := m.jobNamePrefix() + rcName
	if count > 1 {
		/* a job array submits all workers in one bsub call */
		jobName = fmt.Sprintf("%s[1-%d]", jobName, count)
	}
	args := []string{"-o", "/dev/null", "-e", "/dev/null", "-J", jobName}
	if m.queue != "" {
		args = append(args, "-q", m.queue)
	}
	args = append(args, m.workerCmd, "-rc_name", rcName)

	if _, err := m.run(ctx, "bsub", args...); err != nil {
		return fmt.Errorf("bsub of %d worker(s) for resource class %q failed on meadow %q: %w",
			count, rcName, m.name, err)
	}
	return nil
}

/* PendingWorkerCounts counts PEND jobs per resource class from the job name */
func (m *LSFMeadow) PendingWorkerCounts(ctx context.Context) (map[string]int, error) {
	out, err := m.run(ctx, "bjobs", "-w", "-noheader", "-p")
	if err != nil {
		return nil, fmt.Errorf("bjobs -p failed on meadow %q: %w", m.name, err)
	}

	counts := make(map[string]int)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 7 {
			continue
		}
		jobName := fields[6]
		if !strings.HasPrefix(jobName, m.jobNamePrefix()) {
			continue
		}
		rcName := strings.TrimPrefix(jobName, m.jobNamePrefix())
		if i := strings.IndexByte(rcName, '['); i >= 0 {
			rcName = rcName[:i]
		}
		counts[rcName]++
	}
	return counts, nil
}

func (m *LSFMeadow) AvailableWorkerSlots(ctx context.Context) (int, error) {
	if m.maxJobs <= 0 {
		return -1, nil
	}
	statuses, err := m.StatusOfAllOurWorkers(ctx)
	if err != nil {
		return 0, err
	}
	slots := m.maxJobs - len(statuses)
	if slots < 0 {
		slots = 0
	}
	return slots, nil
}

/* FindOutCauses maps bacct termination reasons to worker causes of death */
func (m *LSFMeadow) FindOutCauses(ctx context.Context, processIDs []string) (map[string]db.WorkerCause, error) {
	if len(processIDs) == 0 {
		return map[string]db.WorkerCause{}, nil
	}

	out, err := m.run(ctx, "bacct", append([]string{"-l"}, processIDs...)...)
	if err != nil {
		return nil, fmt.Errorf("bacct failed on meadow %q: %w", m.name, err)
	}

	causes := make(map[string]db.WorkerCause)
	var currentJob string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Job <") {
			end := strings.IndexByte(line[5:], '>')
			if end > 0 {
				currentJob = line[5 : 5+end]
			}
			continue
		}
		if currentJob == "" {
			continue
		}
		switch {
		case strings.Contains(line, "TERM_MEMLIMIT"):
			causes[currentJob] = db.CauseMemlimit
		case strings.Contains(line, "TERM_RUNLIMIT"):
			causes[currentJob] = db.CauseRunlimit
		case strings.Contains(line, "TERM_OWNER"), strings.Contains(line, "TERM_FORCE_OWNER"):
			causes[currentJob] = db.CauseKilledByUser
		}
	}
	return causes, nil
}
