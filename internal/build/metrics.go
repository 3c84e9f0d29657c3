package build

import (
	"sort"
	"sync"
	"time"
)

// RunStats summarises one task run.
type RunStats struct {
	Written   int
	Skipped   int
	Failed    int
	CacheHits int
	Duration  time.Duration
	Err       error
}

// TaskMetrics accumulates run statistics per task.
type TaskMetrics struct {
	Runs          int64
	FailedRuns    int64
	FilesWritten  int64
	FilesSkipped  int64
	FilesFailed   int64
	CacheHits     int64
	TotalDuration time.Duration
	LastDuration  time.Duration
}

// AverageDuration returns the mean run duration.
func (m TaskMetrics) AverageDuration() time.Duration {
	if m.Runs == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.Runs)
}

// BuildMetrics tracks build performance across tasks
type BuildMetrics struct {
	tasks map[string]*TaskMetrics
	mutex sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{tasks: make(map[string]*TaskMetrics)}
}

// Record adds the outcome of one run of task.
func (bm *BuildMetrics) Record(task string, run RunStats) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	m, ok := bm.tasks[task]
	if !ok {
		m = &TaskMetrics{}
		bm.tasks[task] = m
	}
	m.Runs++
	if run.Err != nil {
		m.FailedRuns++
	}
	m.FilesWritten += int64(run.Written)
	m.FilesSkipped += int64(run.Skipped)
	m.FilesFailed += int64(run.Failed)
	m.CacheHits += int64(run.CacheHits)
	m.TotalDuration += run.Duration
	m.LastDuration = run.Duration
}

// Snapshot returns a copy of the metrics of task.
func (bm *BuildMetrics) Snapshot(task string) TaskMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	if m, ok := bm.tasks[task]; ok {
		return *m
	}
	return TaskMetrics{}
}

// Tasks returns the names of every recorded task, sorted.
func (bm *BuildMetrics) Tasks() []string {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	names := make([]string, 0, len(bm.tasks))
	for name := range bm.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset resets all metrics
func (bm *BuildMetrics) Reset() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()
	bm.tasks = make(map[string]*TaskMetrics)
}
