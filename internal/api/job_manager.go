package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"matchsync/internal/season"
	"matchsync/pkg/types"
)

var (
	// ErrJobRunning is returned when attempting to start a job that is already running.
	ErrJobRunning = errors.New("job already running")
	// ErrMaxConcurrency signals that the global concurrency limit has been reached.
	ErrMaxConcurrency = errors.New("maximum concurrent jobs reached")
)

// PassRunner executes an on-demand reconciliation pass for a league.
type PassRunner interface {
	RunLeaguePass(ctx context.Context, leagueID string) (types.PassReport, error)
	LastReports() []types.PassReport
}

// SeasonRunner executes the full season calendar sync.
type SeasonRunner interface {
	SyncAll(ctx context.Context) []season.Report
}

// JobManager coordinates manually triggered sync jobs keyed by job
// identifier. Each job is tracked for its full lifetime: observers can
// list it, stream its events, and cancel it. A triggered pass for a
// league that is already being passed is refused rather than queued;
// the scheduled tick covers it anyway.
type JobManager struct {
	mu             sync.RWMutex
	jobs           map[string]*Job
	passes         PassRunner
	seasons        SeasonRunner
	maxConcurrency int
	running        int
	rootCtx        context.Context
}

// NewJobManager constructs a manager with the provided runners. A nil
// seasons runner disables season jobs.
func NewJobManager(passes PassRunner, seasons SeasonRunner, maxConcurrency int, rootCtx context.Context) *JobManager {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	return &JobManager{
		jobs:           make(map[string]*Job),
		passes:         passes,
		seasons:        seasons,
		maxConcurrency: maxConcurrency,
		rootCtx:        rootCtx,
	}
}

// StartJob validates the request and launches the job in a tracked run.
func (m *JobManager) StartJob(req StartJobRequest) (*Job, error) {
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	// League IDs are stored lowercase in config; folding here keeps the
	// job id consistent with the lowercase lookup in GetJob.
	leagueID := strings.ToLower(strings.TrimSpace(req.LeagueID))

	var jobID string
	var run func(ctx context.Context, job *Job) error
	switch kind {
	case "pass":
		if leagueID == "" {
			return nil, fmt.Errorf("league_id is required for pass jobs")
		}
		jobID = "pass:" + leagueID
		run = func(ctx context.Context, job *Job) error {
			report, err := m.passes.RunLeaguePass(ctx, leagueID)
			job.setPassReport(report)
			return err
		}
	case "season":
		if m.seasons == nil {
			return nil, fmt.Errorf("season sync is not configured")
		}
		jobID = "season"
		run = func(ctx context.Context, job *Job) error {
			reports := m.seasons.SyncAll(ctx)
			job.setSeasonReports(reports)
			for _, r := range reports {
				if r.Errors > 0 {
					return fmt.Errorf("season sync finished with errors")
				}
			}
			return nil
		}
	default:
		return nil, fmt.Errorf("unknown job kind %q", req.Kind)
	}

	m.mu.Lock()
	job, exists := m.jobs[jobID]
	if !exists {
		job = newJob(jobID, kind, leagueID, m)
		m.jobs[jobID] = job
	}
	if job.isActiveLocked() {
		m.mu.Unlock()
		return nil, ErrJobRunning
	}
	if m.running >= m.maxConcurrency {
		m.mu.Unlock()
		return nil, ErrMaxConcurrency
	}
	m.running++
	m.mu.Unlock()

	if err := job.startRun(m.rootCtx, run); err != nil {
		m.mu.Lock()
		if m.running > 0 {
			m.running--
		}
		m.mu.Unlock()
		return nil, err
	}
	return job, nil
}

// ListJobs captures current summaries for all jobs.
func (m *JobManager) ListJobs() []JobSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]JobSummary, 0, len(m.jobs))
	for _, job := range m.jobs {
		summaries = append(summaries, job.Snapshot())
	}
	return summaries
}

// GetJob returns the backing job by id.
func (m *JobManager) GetJob(id string) (*Job, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

// CancelJob requests cancellation of the active run for the job.
func (m *JobManager) CancelJob(id string) error {
	job, ok := m.GetJob(id)
	if !ok {
		return fmt.Errorf("job %q not found", id)
	}
	if !job.Cancel("cancel requested via API") {
		return fmt.Errorf("job %q not running", id)
	}
	return nil
}

// Shutdown stops all active jobs.
func (m *JobManager) Shutdown() {
	m.mu.RLock()
	snapshot := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		snapshot = append(snapshot, j)
	}
	m.mu.RUnlock()

	for _, job := range snapshot {
		job.Cancel("manager shutdown")
	}
}

func (m *JobManager) notifyCompletion() {
	m.mu.Lock()
	if m.running > 0 {
		m.running--
	}
	m.mu.Unlock()
}

// Job tracks the lifecycle and state of one triggered sync run.
type Job struct {
	id       string
	kind     string
	leagueID string

	mu            sync.Mutex
	runID         string
	status        JobStatus
	createdAt     time.Time
	startedAt     *time.Time
	completedAt   *time.Time
	message       string
	lastError     string
	passReport    *types.PassReport
	seasonReports []season.Report

	cancel context.CancelFunc

	subscribers map[chan SSEEvent]struct{}
	subMu       sync.RWMutex

	manager *JobManager
}

func newJob(id, kind, leagueID string, manager *JobManager) *Job {
	return &Job{
		id:          id,
		kind:        kind,
		leagueID:    leagueID,
		status:      JobStatusPending,
		createdAt:   time.Now(),
		subscribers: make(map[chan SSEEvent]struct{}),
		manager:     manager,
	}
}

func (j *Job) isActiveLocked() bool {
	return j.status == JobStatusRunning || j.status == JobStatusCancelling
}

func (j *Job) startRun(parentCtx context.Context, run func(context.Context, *Job) error) error {
	ctx := parentCtx
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)

	started := time.Now()

	j.mu.Lock()
	j.runID = generateRunID()
	j.status = JobStatusRunning
	j.startedAt = &started
	j.completedAt = nil
	j.message = "running"
	j.lastError = ""
	j.passReport = nil
	j.seasonReports = nil
	j.cancel = cancel
	j.mu.Unlock()

	j.broadcast("job_started")

	go func() {
		err := run(runCtx, j)
		cancel()
		j.handleCompletion(err)
	}()
	return nil
}

func (j *Job) handleCompletion(err error) {
	now := time.Now()
	j.mu.Lock()
	status := JobStatusCompleted
	message := "completed"
	errorText := ""
	switch {
	case errors.Is(err, context.Canceled):
		status = JobStatusCancelled
		message = "cancelled"
	case err != nil:
		status = JobStatusFailed
		message = "failed"
		errorText = err.Error()
	}
	j.status = status
	j.completedAt = &now
	j.message = message
	j.lastError = errorText
	j.cancel = nil
	j.mu.Unlock()

	eventType := "job_completed"
	switch status {
	case JobStatusCancelled:
		eventType = "job_cancelled"
	case JobStatusFailed:
		eventType = "job_failed"
	}
	j.broadcast(eventType)
	j.manager.notifyCompletion()
}

// Cancel attempts to stop the running job.
func (j *Job) Cancel(reason string) bool {
	j.mu.Lock()
	if j.status != JobStatusRunning || j.cancel == nil {
		j.mu.Unlock()
		return false
	}
	j.status = JobStatusCancelling
	j.message = reason
	cancel := j.cancel
	j.mu.Unlock()
	j.broadcast("job_cancelling")
	cancel()
	return true
}

func (j *Job) setPassReport(report types.PassReport) {
	j.mu.Lock()
	copyReport := report
	j.passReport = &copyReport
	j.mu.Unlock()
}

func (j *Job) setSeasonReports(reports []season.Report) {
	j.mu.Lock()
	j.seasonReports = append([]season.Report(nil), reports...)
	j.mu.Unlock()
}

// Snapshot returns a copy of the public job state.
func (j *Job) Snapshot() JobSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() JobSummary {
	summary := JobSummary{
		JobID:     j.id,
		Kind:      j.kind,
		LeagueID:  j.leagueID,
		RunID:     j.runID,
		Status:    j.status,
		CreatedAt: j.createdAt,
		Message:   j.message,
		Error:     j.lastError,
	}
	if j.startedAt != nil {
		started := *j.startedAt
		summary.StartedAt = &started
	}
	if j.completedAt != nil {
		completed := *j.completedAt
		summary.CompletedAt = &completed
	}
	if j.passReport != nil {
		copyReport := *j.passReport
		summary.PassReport = &copyReport
	}
	if len(j.seasonReports) > 0 {
		summary.SeasonReports = append([]season.Report(nil), j.seasonReports...)
	}
	return summary
}

// Subscribe registers an SSE subscriber for the job.
func (j *Job) Subscribe() (<-chan SSEEvent, func()) {
	ch := make(chan SSEEvent, 16)

	j.subMu.Lock()
	j.subscribers[ch] = struct{}{}
	j.subMu.Unlock()

	initial := SSEEvent{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Job:       j.Snapshot(),
	}
	select {
	case ch <- initial:
	default:
	}

	cancel := func() {
		j.subMu.Lock()
		if _, ok := j.subscribers[ch]; ok {
			delete(j.subscribers, ch)
			close(ch)
		}
		j.subMu.Unlock()
	}
	return ch, cancel
}

func (j *Job) broadcast(eventType string) {
	envelope := SSEEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Job:       j.Snapshot(),
	}

	j.subMu.RLock()
	defer j.subMu.RUnlock()
	for ch := range j.subscribers {
		select {
		case ch <- envelope:
		default:
		}
	}
}

func generateRunID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
