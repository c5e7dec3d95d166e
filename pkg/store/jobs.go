package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/models"
)

// ratingEpsilon is the smallest average-rating change worth writing.
const ratingEpsilon = 1e-9

const (
	workerColumns = `id, name, skills, avg_rating, current_job_count, created_at, updated_at`
	jobColumns    = `id, client_id, worker_id, title, description, category, status, rating, review_flag, flagged_at, status_changed_at, created_at, updated_at`
)

// --- Worker Operations ---

// CreateWorker inserts a new worker.
func (s *Store) CreateWorker(ctx context.Context, name string, skills []string) (*models.Worker, error) {
	now := s.now().UTC()
	if skills == nil {
		skills = []string{}
	}
	w := &models.Worker{
		ID:        uuid.New().String(),
		Name:      name,
		Skills:    skills,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(w.Skills)
	if err != nil {
		return nil, nimerrors.NewStoreError("CreateWorker", "encode skills", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workers (id, name, skills, current_job_count, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		w.ID, w.Name, string(data), toMillis(now), toMillis(now))
	if err != nil {
		return nil, nimerrors.NewStoreError("CreateWorker", "insert worker", err)
	}
	return w, nil
}

func scanWorker(row rowScanner) (*models.Worker, error) {
	var (
		w                    models.Worker
		skills               string
		avg                  sql.NullFloat64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&w.ID, &w.Name, &skills, &avg, &w.CurrentJobCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(skills), &w.Skills); err != nil {
		return nil, nimerrors.Wrap(err, "decode skills")
	}
	w.AvgRating = nullFloat(avg)
	w.CreatedAt = fromMillis(createdAt)
	w.UpdatedAt = fromMillis(updatedAt)
	return &w, nil
}

// GetWorker returns the worker with id, or nil if none exists.
func (s *Store) GetWorker(ctx context.Context, id string) (*models.Worker, error) {
	w, err := scanWorker(s.db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, nimerrors.NewStoreError("GetWorker", "query worker", err)
	}
	return w, nil
}

// ListWorkers returns all workers ordered by name.
func (s *Store) ListWorkers(ctx context.Context) ([]models.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY name, id`)
	if err != nil {
		return nil, nimerrors.NewStoreError("ListWorkers", "query workers", err)
	}
	defer rows.Close()

	var workers []models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, nimerrors.NewStoreError("ListWorkers", "scan worker", err)
		}
		workers = append(workers, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, nimerrors.NewStoreError("ListWorkers", "iterate workers", err)
	}
	return workers, nil
}

// --- Job Operations ---

// NewJob describes a job to create.
type NewJob struct {
	ClientID    string
	WorkerID    string
	Title       string
	Description string
	Category    string
	Status      models.JobStatus
}

// CreateJob inserts a job. Status defaults to pending.
func (s *Store) CreateJob(ctx context.Context, in NewJob) (*models.Job, error) {
	now := s.now().UTC()
	status := in.Status
	if status == "" {
		status = models.JobPending
	}
	j := &models.Job{
		ID:              uuid.New().String(),
		ClientID:        in.ClientID,
		WorkerID:        in.WorkerID,
		Title:           in.Title,
		Description:     in.Description,
		Category:        in.Category,
		Status:          status,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, client_id, worker_id, title, description, category, status, review_flag, status_changed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		j.ID, j.ClientID, nullString(j.WorkerID), j.Title, j.Description, j.Category, j.Status,
		toMillis(now), toMillis(now), toMillis(now))
	if err != nil {
		return nil, nimerrors.NewStoreError("CreateJob", "insert job", err)
	}
	return j, nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		j                                     models.Job
		workerID                              sql.NullString
		rating                                sql.NullFloat64
		reviewFlag                            int
		flaggedAt                             sql.NullInt64
		statusChangedAt, createdAt, updatedAt int64
	)
	if err := row.Scan(&j.ID, &j.ClientID, &workerID, &j.Title, &j.Description, &j.Category, &j.Status,
		&rating, &reviewFlag, &flaggedAt, &statusChangedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.WorkerID = workerID.String
	j.Rating = nullFloat(rating)
	j.ReviewFlag = reviewFlag != 0
	j.FlaggedAt = nullMillis(flaggedAt)
	j.StatusChangedAt = fromMillis(statusChangedAt)
	j.CreatedAt = fromMillis(createdAt)
	j.UpdatedAt = fromMillis(updatedAt)
	return &j, nil
}

// GetJob returns the job with id, or nil if none exists.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, nimerrors.NewStoreError("GetJob", "query job", err)
	}
	return j, nil
}

// ListClientJobs returns the client's most recent jobs.
func (s *Store) ListClientJobs(ctx context.Context, clientID string, limit int) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE client_id = ? ORDER BY created_at DESC LIMIT ?`,
		clientID, limit)
	if err != nil {
		return nil, nimerrors.NewStoreError("ListClientJobs", "query jobs", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, nimerrors.NewStoreError("ListClientJobs", "scan job", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, nimerrors.NewStoreError("ListClientJobs", "iterate jobs", err)
	}
	return jobs, nil
}

// UpdateJobStatus moves a job to status and stamps status_changed_at.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, status_changed_at = ?, updated_at = ? WHERE id = ?`,
		status, now, now, id)
	if err != nil {
		return nimerrors.NewStoreError("UpdateJobStatus", "update job", err)
	}
	ok, err := affected(res, "UpdateJobStatus")
	if err != nil {
		return err
	}
	if !ok {
		return nimerrors.NewStoreError("UpdateJobStatus", "job "+id+" not found", nil)
	}
	return nil
}

// AssignJob sets the job's worker and moves it to assigned.
func (s *Store) AssignJob(ctx context.Context, jobID, workerID string) error {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET worker_id = ?, status = 'assigned', status_changed_at = ?, updated_at = ? WHERE id = ?`,
		workerID, now, now, jobID)
	if err != nil {
		return nimerrors.NewStoreError("AssignJob", "update job", err)
	}
	ok, err := affected(res, "AssignJob")
	if err != nil {
		return err
	}
	if !ok {
		return nimerrors.NewStoreError("AssignJob", "job "+jobID+" not found", nil)
	}
	return nil
}

// RateJob records the client's 1-5 rating for a completed job.
func (s *Store) RateJob(ctx context.Context, id string, rating float64) error {
	if rating < 1 || rating > 5 {
		return nimerrors.NewStoreError("RateJob", "rating must be between 1 and 5", nil)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET rating = ?, updated_at = ? WHERE id = ? AND status = 'completed'`,
		rating, toMillis(s.now()), id)
	if err != nil {
		return nimerrors.NewStoreError("RateJob", "update job", err)
	}
	ok, err := affected(res, "RateJob")
	if err != nil {
		return err
	}
	if !ok {
		return nimerrors.NewStoreError("RateJob", "job "+id+" not found or not completed", nil)
	}
	return nil
}

// --- Consistency queries ---

// WorkerRatingStat pairs a worker's stored average with the live aggregate
// over its rated, completed jobs.
type WorkerRatingStat struct {
	WorkerID  string
	Stored    *float64
	Mean      float64
	RatedJobs int
}

// WorkerRatingStats re-derives every worker's rating aggregate from jobs.
func (s *Store) WorkerRatingStats(ctx context.Context) ([]WorkerRatingStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.avg_rating, COALESCE(AVG(j.rating), 0), COUNT(j.rating)
		FROM workers w
		LEFT JOIN jobs j ON j.worker_id = w.id AND j.status = 'completed' AND j.rating IS NOT NULL
		GROUP BY w.id
		ORDER BY w.id`)
	if err != nil {
		return nil, nimerrors.NewStoreError("WorkerRatingStats", "query ratings", err)
	}
	defer rows.Close()

	var stats []WorkerRatingStat
	for rows.Next() {
		var st WorkerRatingStat
		var stored sql.NullFloat64
		if err := rows.Scan(&st.WorkerID, &stored, &st.Mean, &st.RatedJobs); err != nil {
			return nil, nimerrors.NewStoreError("WorkerRatingStats", "scan rating", err)
		}
		st.Stored = nullFloat(stored)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, nimerrors.NewStoreError("WorkerRatingStats", "iterate ratings", err)
	}
	return stats, nil
}

// SetWorkerRating writes avg_rating when it differs from rating. It reports
// whether a row changed.
func (s *Store) SetWorkerRating(ctx context.Context, workerID string, rating float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE workers SET avg_rating = ?, updated_at = ?
		WHERE id = ? AND (avg_rating IS NULL OR ABS(avg_rating - ?) > ?)`,
		rating, toMillis(s.now()), workerID, rating, ratingEpsilon)
	if err != nil {
		return false, nimerrors.NewStoreError("SetWorkerRating", "update worker", err)
	}
	return affected(res, "SetWorkerRating")
}

// WorkerJobCount pairs a worker's stored job count with the live count of
// its non-terminal jobs.
type WorkerJobCount struct {
	WorkerID string
	Stored   int
	Live     int
}

// WorkerJobCounts re-derives every worker's open job count from jobs.
func (s *Store) WorkerJobCounts(ctx context.Context) ([]WorkerJobCount, error) {
	marks, args := terminalStatusArgs()
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.current_job_count, COUNT(j.id)
		FROM workers w
		LEFT JOIN jobs j ON j.worker_id = w.id AND j.status NOT IN (`+marks+`)
		GROUP BY w.id
		ORDER BY w.id`, args...)
	if err != nil {
		return nil, nimerrors.NewStoreError("WorkerJobCounts", "query counts", err)
	}
	defer rows.Close()

	var counts []WorkerJobCount
	for rows.Next() {
		var c WorkerJobCount
		if err := rows.Scan(&c.WorkerID, &c.Stored, &c.Live); err != nil {
			return nil, nimerrors.NewStoreError("WorkerJobCounts", "scan count", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nimerrors.NewStoreError("WorkerJobCounts", "iterate counts", err)
	}
	return counts, nil
}

// SetWorkerJobCount writes current_job_count when it differs from count. It
// reports whether a row changed.
func (s *Store) SetWorkerJobCount(ctx context.Context, workerID string, count int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workers SET current_job_count = ?, updated_at = ? WHERE id = ? AND current_job_count != ?`,
		count, toMillis(s.now()), workerID, count)
	if err != nil {
		return false, nimerrors.NewStoreError("SetWorkerJobCount", "update worker", err)
	}
	return affected(res, "SetWorkerJobCount")
}

// ListStaleJobIDs returns unflagged in-progress jobs whose status has not
// changed since cutoff.
func (s *Store) ListStaleJobIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM jobs
		WHERE status = 'in_progress' AND review_flag = 0 AND status_changed_at < ?
		ORDER BY status_changed_at`,
		toMillis(cutoff))
	if err != nil {
		return nil, nimerrors.NewStoreError("ListStaleJobIDs", "query jobs", err)
	}
	return collectIDs(rows, "ListStaleJobIDs")
}

// FlagJobForReview sets the review flag on job id if it is still an
// unflagged in-progress job older than cutoff. Status is not changed.
func (s *Store) FlagJobForReview(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET review_flag = 1, flagged_at = ?, updated_at = ?
		WHERE id = ? AND status = 'in_progress' AND review_flag = 0 AND status_changed_at < ?`,
		now, now, id, toMillis(cutoff))
	if err != nil {
		return false, nimerrors.NewStoreError("FlagJobForReview", "update job", err)
	}
	return affected(res, "FlagJobForReview")
}

// --- Client Preferences ---

// SetPreference upserts a client preference.
func (s *Store) SetPreference(ctx context.Context, clientID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_preferences (client_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		clientID, key, value, toMillis(s.now()))
	if err != nil {
		return nimerrors.NewStoreError("SetPreference", "upsert preference", err)
	}
	return nil
}

// ListPreferences returns the client's saved preferences ordered by key.
func (s *Store) ListPreferences(ctx context.Context, clientID string) ([]models.ClientPreference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, key, value, updated_at FROM client_preferences WHERE client_id = ? ORDER BY key`,
		clientID)
	if err != nil {
		return nil, nimerrors.NewStoreError("ListPreferences", "query preferences", err)
	}
	defer rows.Close()

	var prefs []models.ClientPreference
	for rows.Next() {
		var p models.ClientPreference
		var updatedAt int64
		if err := rows.Scan(&p.ClientID, &p.Key, &p.Value, &updatedAt); err != nil {
			return nil, nimerrors.NewStoreError("ListPreferences", "scan preference", err)
		}
		p.UpdatedAt = fromMillis(updatedAt)
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nimerrors.NewStoreError("ListPreferences", "iterate preferences", err)
	}
	return prefs, nil
}

// ListCompletedBriefs returns the client's completed sessions that carry a
// brief, newest first.
func (s *Store) ListCompletedBriefs(ctx context.Context, clientID string, limit int) ([]models.BriefingSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM briefing_sessions
		 WHERE client_id = ? AND status = 'completed' AND extracted_brief IS NOT NULL
		 ORDER BY updated_at DESC LIMIT ?`,
		clientID, limit)
	if err != nil {
		return nil, nimerrors.NewStoreError("ListCompletedBriefs", "query sessions", err)
	}
	defer rows.Close()

	var out []models.BriefingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, nimerrors.NewStoreError("ListCompletedBriefs", "scan session", err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, nimerrors.NewStoreError("ListCompletedBriefs", "iterate sessions", err)
	}
	return out, nil
}

// terminalStatusArgs returns placeholders and arguments for an IN list of
// the terminal job statuses.
func terminalStatusArgs() (string, []any) {
	statuses := models.TerminalJobStatuses()
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		marks[i] = "?"
		args[i] = string(st)
	}
	return strings.Join(marks, ", "), args
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
