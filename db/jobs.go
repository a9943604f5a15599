package db

import (
	"time"

	"github.com/deemkeen/loxodon/domain"
	"github.com/google/uuid"
)

// Background job queries. The claim is a single statement so that
// concurrent pollers never receive the same job.
const (
	sqlInsertJob = `INSERT INTO background_jobs(id, job_type, job_data, job_status, scheduled_for, updated_at) VALUES (?, ?, ?, ?, ?, ?)`

	sqlClaimJobBatch = `UPDATE background_jobs
        SET job_status = ?, updated_at = ?
        WHERE id IN (
            SELECT id FROM background_jobs
            WHERE job_type = ?
              AND scheduled_for <= ?
              AND (job_status = ? OR (job_status = ? AND updated_at < ?))
            ORDER BY scheduled_for ASC
            LIMIT ?
        )
        RETURNING id, job_type, job_data, job_status, scheduled_for, updated_at`

	sqlDeleteJob = `DELETE FROM background_jobs WHERE id = ?`
)

// EnqueueJob inserts a durable job record. scheduledFor may be in the
// future for delayed retries.
func (db *DB) EnqueueJob(jobType int, jobData string, scheduledFor time.Time) error {
	_, err := db.db.Exec(sqlInsertJob,
		uuid.New().String(),
		jobType,
		jobData,
		domain.JobStatusQueued,
		scheduledFor,
		time.Now(),
	)
	return err
}

// ClaimJobBatch atomically selects up to batchSize due jobs that are
// Queued, or Running but stale beyond visibilityTimeout (crash recovery),
// marks them Running and returns them.
func (db *DB) ClaimJobBatch(jobType int, batchSize int, visibilityTimeout time.Duration) (error, *[]domain.Job) {
	now := time.Now()
	staleBefore := now.Add(-visibilityTimeout)

	rows, err := db.db.Query(sqlClaimJobBatch,
		domain.JobStatusRunning,
		now,
		jobType,
		now,
		domain.JobStatusQueued,
		domain.JobStatusRunning,
		staleBefore,
		batchSize,
	)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		var idStr string
		if err := rows.Scan(&idStr, &job.JobType, &job.JobData, &job.JobStatus, &job.ScheduledFor, &job.UpdatedAt); err != nil {
			return err, &jobs
		}
		job.Id, _ = uuid.Parse(idStr)
		jobs = append(jobs, job)
	}
	if err = rows.Err(); err != nil {
		return err, &jobs
	}
	return nil, &jobs
}

// CompleteJob removes a finished (or abandoned) job from the queue
func (db *DB) CompleteJob(jobId uuid.UUID) error {
	_, err := db.db.Exec(sqlDeleteJob, jobId.String())
	return err
}
