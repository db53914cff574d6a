package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/petalpost/storefront-backend/pkg/db/models"
)

// Repository reads and writes outbox_events. Producers write through a
// transaction; the publisher uses the repository's own connection.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// InsertOnce writes the row unless a unique index already holds an equal
// one, and reports whether it wrote.
func (r *Repository) InsertOnce(tx *gorm.DB, event models.OutboxEvent) (bool, error) {
	if tx == nil {
		return false, errTxRequired
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FetchUnpublished returns the oldest unpublished rows still under the attempt cap.
func (r *Repository) FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	q := r.db.WithContext(ctx).Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	err := q.Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", id).
		UpdateColumn("published_at", time.Now().UTC()).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminal parks a row that can never be published by pushing it past the attempt cap.
func (r *Repository) MarkTerminal(ctx context.Context, id uuid.UUID, maxAttempts int, err error) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": maxAttempts,
		}).Error
}
