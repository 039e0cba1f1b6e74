package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DiskPersistence stores the job queue's restart-survival state as JSON
// files under a data directory, grounded on the teacher's
// internal/projects.Service metadata persistence (os.MkdirAll + JSON
// marshal/unmarshal to a fixed path, best-effort writes). One file holds
// the queued-job snapshot; deferred (overflowed) jobs each get their own
// file named by job ID so concurrent overflows never clobber each other.
type DiskPersistence struct {
	root string

	mu sync.Mutex
}

// NewDiskPersistence roots job persistence at <dataPath>/jobs. dataPath
// is config.Config.DataPath.
func NewDiskPersistence(dataPath string) (*DiskPersistence, error) {
	root := filepath.Join(dataPath, "jobs")
	if err := os.MkdirAll(filepath.Join(root, "deferred"), 0o755); err != nil {
		return nil, fmt.Errorf("create job persistence dir: %w", err)
	}
	return &DiskPersistence{root: root}, nil
}

func (d *DiskPersistence) queuedPath() string {
	return filepath.Join(d.root, "queued.json")
}

func (d *DiskPersistence) deferredPath(jobID string) string {
	return filepath.Join(d.root, "deferred", jobID+".json")
}

// SaveQueued overwrites the queued-job snapshot. Called once at shutdown
// with whatever is still sitting in the channel.
func (d *DiskPersistence) SaveQueued(jobs []Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.queuedPath(), b, 0o644)
}

// LoadQueued reads the queued-job snapshot left by a prior shutdown and
// clears it, since Start requeues everything it returns. A missing file
// is not an error: it just means there was nothing left over.
func (d *DiskPersistence) LoadQueued() ([]Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := os.ReadFile(d.queuedPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var jobs []Job
	if err := json.Unmarshal(b, &jobs); err != nil {
		return nil, err
	}
	_ = os.Remove(d.queuedPath())
	return jobs, nil
}

// SaveDeferred records one job that overflowed the queue's capacity, for
// an operator-triggered recovery sweep to pick up later.
func (d *DiskPersistence) SaveDeferred(job Job) error {
	if job.DeferredAt.IsZero() {
		job.DeferredAt = time.Now().UTC()
	}
	b, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.deferredPath(job.ID), b, 0o644)
}

// LoadDeferred lists every job currently deferred, for the recovery sweep
// (C-admin) to requeue or report on.
func (d *DiskPersistence) LoadDeferred() ([]Job, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, "deferred"))
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(d.root, "deferred", e.Name()))
		if err != nil {
			continue
		}
		var job Job
		if err := json.Unmarshal(b, &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ClearDeferred removes a deferred job's marker file once the recovery
// sweep has successfully requeued it.
func (d *DiskPersistence) ClearDeferred(jobID string) error {
	err := os.Remove(d.deferredPath(jobID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
