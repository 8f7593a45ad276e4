package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

// Repository persists ledger receipts and the durable anchor job queue.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRecord(ctx context.Context, orderID uuid.UUID) (*models.LedgerRecord, error)
	InsertRecord(ctx context.Context, record *models.LedgerRecord) error
	EnsureJob(ctx context.Context, orderID uuid.UUID, dueAt time.Time) error
	FindJob(ctx context.Context, orderID uuid.UUID) (*models.LedgerAnchorJob, error)
	ListDueJobs(ctx context.Context, now time.Time, limit int) ([]models.LedgerAnchorJob, error)
	ClaimJob(ctx context.Context, jobID uuid.UUID, attempt int, now, leaseUntil time.Time) (bool, error)
	MarkJobDone(ctx context.Context, jobID uuid.UUID) error
	MarkJobFailed(ctx context.Context, jobID uuid.UUID, reason string) error
	RescheduleJob(ctx context.Context, jobID uuid.UUID, next time.Time, reason string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindRecord(ctx context.Context, orderID uuid.UUID) (*models.LedgerRecord, error) {
	var record models.LedgerRecord
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) InsertRecord(ctx context.Context, record *models.LedgerRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// EnsureJob creates a pending job for the order unless one already exists.
func (r *repository) EnsureJob(ctx context.Context, orderID uuid.UUID, dueAt time.Time) error {
	job := models.LedgerAnchorJob{
		ID:            uuid.New(),
		OrderID:       orderID,
		Status:        enums.AnchorJobStatusPending,
		NextAttemptAt: dueAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&job).Error
}

func (r *repository) FindJob(ctx context.Context, orderID uuid.UUID) (*models.LedgerAnchorJob, error) {
	var job models.LedgerAnchorJob
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]models.LedgerAnchorJob, error) {
	if limit <= 0 {
		limit = 25
	}
	var jobs []models.LedgerAnchorJob
	err := r.db.WithContext(ctx).
		Where("status IN ? AND next_attempt_at <= ?", []enums.AnchorJobStatus{enums.AnchorJobStatusPending, enums.AnchorJobStatusRunning}, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimJob bumps the attempt marker only if nobody else has since the job was read,
// and leases the job until leaseUntil. A running job is claimable again once its lease lapses.
func (r *repository) ClaimJob(ctx context.Context, jobID uuid.UUID, attempt int, now, leaseUntil time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LedgerAnchorJob{}).
		Where("id = ? AND attempt = ?", jobID, attempt).
		Where("status = ? OR (status = ? AND next_attempt_at <= ?)", enums.AnchorJobStatusPending, enums.AnchorJobStatusRunning, now).
		Updates(map[string]any{
			"attempt":         attempt + 1,
			"status":          enums.AnchorJobStatusRunning,
			"next_attempt_at": leaseUntil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkJobDone(ctx context.Context, jobID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerAnchorJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{"status": enums.AnchorJobStatusDone, "last_error": nil}).Error
}

func (r *repository) MarkJobFailed(ctx context.Context, jobID uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerAnchorJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{"status": enums.AnchorJobStatusFailed, "last_error": reason}).Error
}

// RescheduleJob releases a running job back to pending; finished jobs are left alone.
func (r *repository) RescheduleJob(ctx context.Context, jobID uuid.UUID, next time.Time, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerAnchorJob{}).
		Where("id = ? AND status IN ?", jobID, []enums.AnchorJobStatus{enums.AnchorJobStatusPending, enums.AnchorJobStatusRunning}).
		Updates(map[string]any{
			"status":          enums.AnchorJobStatusPending,
			"next_attempt_at": next,
			"last_error":      reason,
		}).Error
}
