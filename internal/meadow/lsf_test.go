/*-------------------------------------------------------------------------
 *
 * lsf_test.go
 *    Tests for the LSF meadow driver
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 *-------------------------------------------------------------------------
 */

package meadow

import (
	"context"
	"testing"

	"github.com/neurondb/NeuronHive/internal/db"
)

func lsfWithOutput(outputs map[string]string) *LSFMeadow {
	runner := func(ctx context.Context, name string, args ...string) (string, error) {
		return outputs[name], nil
	}
	return NewLSFMeadowWithRunner("farm", "normal", "hive-worker", 10, runner)
}

func TestLSFStatusParsing(t *testing.T) {
	bjobs := `1001 hive RUN   normal  head  node-1  farm-Hive-small /bin/x Aug  6 09:00
1002 hive PEND  normal  head  -       farm-Hive-small /bin/x Aug  6 09:01
1003 hive SSUSP normal  head  node-2  farm-Hive-big   /bin/x Aug  6 09:02
1004 hive RUN   normal  head  node-3  unrelated-job   /bin/x Aug  6 09:03
`
	m := lsfWithOutput(map[string]string{"bjobs": bjobs})

	statuses, err := m.StatusOfAllOurWorkers(context.Background())
	if err != nil {
		t.Fatalf("StatusOfAllOurWorkers() error = %v", err)
	}

	want := map[string]ProcessStatus{
		"1001": ProcessRunning,
		"1002": ProcessPending,
		"1003": ProcessSuspended,
	}
	if len(statuses) != len(want) {
		t.Errorf("got %d statuses, want %d (foreign jobs must be ignored)", len(statuses), len(want))
	}
	for pid, status := range want {
		if statuses[pid] != status {
			t.Errorf("status[%s] = %s, want %s", pid, statuses[pid], status)
		}
	}
}

func TestLSFPendingCountsByResourceClass(t *testing.T) {
	bjobs := `1001 hive PEND normal head - farm-Hive-small /bin/x Aug  6 09:00
1002 hive PEND normal head - farm-Hive-small /bin/x Aug  6 09:01
1003 hive PEND normal head - farm-Hive-big[3] /bin/x Aug  6 09:02
`
	m := lsfWithOutput(map[string]string{"bjobs": bjobs})

	pending, err := m.PendingWorkerCounts(context.Background())
	if err != nil {
		t.Fatalf("PendingWorkerCounts() error = %v", err)
	}
	if pending["small"] != 2 {
		t.Errorf("pending[small] = %d, want 2", pending["small"])
	}
	if pending["big"] != 1 {
		t.Errorf("pending[big] = %d, want 1 (array suffix stripped)", pending["big"])
	}
}

func TestLSFFindOutCauses(t *testing.T) {
	bacct := `Job <1001>, Job Name <farm-Hive-small>, User <hive>
  Completed <exit>; TERM_MEMLIMIT: job killed after reaching LSF memory usage limit.
Job <1002>, Job Name <farm-Hive-small>, User <hive>
  Completed <exit>; TERM_RUNLIMIT: job killed after reaching LSF run time limit.
Job <1003>, Job Name <farm-Hive-big>, User <hive>
  Completed <exit>; TERM_OWNER: job killed by owner.
Job <1004>, Job Name <farm-Hive-big>, User <hive>
  Completed <done>.
`
	m := lsfWithOutput(map[string]string{"bacct": bacct})

	causes, err := m.FindOutCauses(context.Background(), []string{"1001", "1002", "1003", "1004"})
	if err != nil {
		t.Fatalf("FindOutCauses() error = %v", err)
	}

	want := map[string]db.WorkerCause{
		"1001": db.CauseMemlimit,
		"1002": db.CauseRunlimit,
		"1003": db.CauseKilledByUser,
	}
	for pid, cause := range want {
		if causes[pid] != cause {
			t.Errorf("cause[%s] = %s, want %s", pid, causes[pid], cause)
		}
	}
	if _, ok := causes["1004"]; ok {
		t.Error("a cleanly finished job must not get a cause")
	}
}

func TestLSFAvailableSlots(t *testing.T) {
	bjobs := `1001 hive RUN normal head node-1 farm-Hive-small /bin/x Aug  6 09:00
1002 hive RUN normal head node-2 farm-Hive-small /bin/x Aug  6 09:01
`
	m := lsfWithOutput(map[string]string{"bjobs": bjobs})

	slots, err := m.AvailableWorkerSlots(context.Background())
	if err != nil {
		t.Fatalf("AvailableWorkerSlots() error = %v", err)
	}
	if slots != 8 {
		t.Errorf("slots = %d, want 8 (10 max minus 2 running)", slots)
	}
}
