/*-------------------------------------------------------------------------
 *
 * profiler.go
 *    Worker activity profiler for NeuronHive
 *
 * Reconstructs per-analysis worker concurrency over a time range from
 * the birth and death timestamps in the worker table. Each bucket value
 * is the average number of concurrent workers during the bucket:
 * overlap seconds summed per analysis, divided by the bucket length.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/profiler/profiler.go
 *
 *-------------------------------------------------------------------------
 */

package profiler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neurondb/NeuronHive/internal/db"
)

type Options struct {
	/* zero Start/End derive the range from the worker table */
	Start time.Time
	End   time.Time

	/* Granularity is one bucket's width; default 5 minutes */
	Granularity time.Duration

	/* SkipNoActivity compresses idle gaps longer than this to a head and
	 * a tail bucket; default 2 hours */
	SkipNoActivity time.Duration
}

/* AnalysisActivity is one analysis' bucketed concurrency series */
type AnalysisActivity struct {
	AnalysisID int64
	LogicName  string
	Counts     []float64

	/* Total is the summed worker-buckets, the ranking key */
	Total float64
}

/* Profile is the reconstructed activity timeline */
type Profile struct {
	Buckets     []time.Time
	Granularity time.Duration

	/* Analyses are ranked by decreasing total worker-time, ties broken
	 * by case-insensitive logic_name */
	Analyses []AnalysisActivity
}

/* Build reconstructs the activity profile from the worker table */
func Build(ctx context.Context, queries *db.Queries, opts Options) (*Profile, error) {
	if opts.Granularity <= 0 {
		opts.Granularity = 5 * time.Minute
	}
	if opts.SkipNoActivity <= 0 {
		opts.SkipNoActivity = 2 * time.Hour
	}

	start, end := opts.Start, opts.End
	if start.IsZero() || end.IsZero() {
		minBorn, maxDied, err := queries.Workers().LifetimeBounds(ctx)
		if err != nil {
			return nil, err
		}
		if start.IsZero() {
			start = minBorn
		}
		if end.IsZero() {
			end = maxDied
		}
	}
	if !end.After(start) {
		return nil, fmt.Errorf("profiling range is empty: start=%s end=%s", start, end)
	}

	intervals, err := queries.Workers().FetchIntervals(ctx, start, end)
	if err != nil {
		return nil, err
	}

	profile := bucketize(intervals, start, end, opts.Granularity, end)
	profile.compressIdleGaps(opts.SkipNoActivity)
	profile.rank()
	return profile, nil
}

/* bucketize distributes worker lifetimes over the bucket grid. A worker
 * still alive is treated as dying at aliveUntil. */
func bucketize(intervals []db.WorkerInterval, start, end time.Time, granularity time.Duration, aliveUntil time.Time) *Profile {
	numBuckets := int(end.Sub(start) / granularity)
	if end.Sub(start)%granularity != 0 {
		numBuckets++
	}
	if numBuckets < 1 {
		numBuckets = 1
	}

	buckets := make([]time.Time, numBuckets)
	for i := range buckets {
		buckets[i] = start.Add(time.Duration(i) * granularity)
	}

	byAnalysis := make(map[int64]*AnalysisActivity)
	for _, iv := range intervals {
		activity, ok := byAnalysis[iv.AnalysisID]
		if !ok {
			activity = &AnalysisActivity{
				AnalysisID: iv.AnalysisID,
				LogicName:  iv.LogicName,
				Counts:     make([]float64, numBuckets),
			}
			byAnalysis[iv.AnalysisID] = activity
		}

		died := aliveUntil
		if iv.Died != nil {
			died = *iv.Died
		}

		for i, d1 := range buckets {
			d2 := d1.Add(granularity)
			from := iv.Born
			if d1.After(from) {
				from = d1
			}
			to := died
			if d2.Before(to) {
				to = d2
			}
			if overlap := to.Sub(from); overlap > 0 {
				share := overlap.Seconds() / granularity.Seconds()
				activity.Counts[i] += share
				activity.Total += share
			}
		}
	}

	profile := &Profile{Buckets: buckets, Granularity: granularity}
	for _, activity := range byAnalysis {
		profile.Analyses = append(profile.Analyses, *activity)
	}
	return profile
}

/* compressIdleGaps keeps short idle runs as-is but collapses runs longer
 * than the threshold down to their first and last bucket. */
func (p *Profile) compressIdleGaps(threshold time.Duration) {
	thresholdBuckets := int(threshold / p.Granularity)
	if thresholdBuckets < 2 || len(p.Buckets) == 0 {
		return
	}

	empty := make([]bool, len(p.Buckets))
	for i := range p.Buckets {
		empty[i] = true
		for _, a := range p.Analyses {
			if a.Counts[i] > 0 {
				empty[i] = false
				break
			}
		}
	}

	keep := make([]bool, len(p.Buckets))
	for i := 0; i < len(p.Buckets); {
		if !empty[i] {
			keep[i] = true
			i++
			continue
		}
		j := i
		for j < len(p.Buckets) && empty[j] {
			j++
		}
		if runLen := j - i; runLen <= thresholdBuckets {
			for k := i; k < j; k++ {
				keep[k] = true
			}
		} else {
			keep[i] = true
			keep[j-1] = true
		}
		i = j
	}

	var buckets []time.Time
	kept := make([]int, 0, len(p.Buckets))
	for i, k := range keep {
		if k {
			buckets = append(buckets, p.Buckets[i])
			kept = append(kept, i)
		}
	}
	if len(buckets) == len(p.Buckets) {
		return
	}

	p.Buckets = buckets
	for ai := range p.Analyses {
		counts := make([]float64, len(kept))
		for ci, src := range kept {
			counts[ci] = p.Analyses[ai].Counts[src]
		}
		p.Analyses[ai].Counts = counts
	}
}

/* rank orders analyses by decreasing total worker-time; ties break on
 * case-insensitive logic_name so the stack order is deterministic. */
func (p *Profile) rank() {
	sort.SliceStable(p.Analyses, func(i, j int) bool {
		if p.Analyses[i].Total != p.Analyses[j].Total {
			return p.Analyses[i].Total > p.Analyses[j].Total
		}
		return strings.ToLower(p.Analyses[i].LogicName) < strings.ToLower(p.Analyses[j].LogicName)
	})
}

/* TopN selects how many ranked analyses a chart shows. An integer keeps
 * that many; a fraction f < 1 keeps the smallest prefix whose cumulative
 * share of the grand total first reaches 0.995 × f. */
func (p *Profile) TopN(top float64) int {
	if len(p.Analyses) == 0 {
		return 0
	}
	if top <= 0 {
		return len(p.Analyses)
	}
	if top >= 1 {
		n := int(top)
		if n > len(p.Analyses) {
			n = len(p.Analyses)
		}
		return n
	}

	var grandTotal float64
	for _, a := range p.Analyses {
		grandTotal += a.Total
	}
	if grandTotal == 0 {
		return len(p.Analyses)
	}

	target := 0.995 * top * grandTotal
	var cumulative float64
	for i, a := range p.Analyses {
		cumulative += a.Total
		if cumulative >= target {
			return i + 1
		}
	}
	return len(p.Analyses)
}
