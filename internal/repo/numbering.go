package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"carewire/internal/services"
	"carewire/pkg/models"
)

// VirtualNumberRepository handles virtual number pool data access. The
// unique indexes on number and assigned_user_id enforce the allocation
// invariants; violations surface as services.ErrNumberTaken.
type VirtualNumberRepository struct {
	db *gorm.DB
}

// NewVirtualNumberRepository creates a new virtual number repository
func NewVirtualNumberRepository(db *gorm.DB) *VirtualNumberRepository {
	return &VirtualNumberRepository{db: db}
}

// Create inserts a pool row, assigned or free.
func (r *VirtualNumberRepository) Create(ctx context.Context, vn *models.VirtualNumber) error {
	if err := r.db.WithContext(ctx).Create(vn).Error; err != nil {
		return translateDuplicate(err)
	}
	return nil
}

// FindByAssignedUser gets the number currently held by a user, if any.
func (r *VirtualNumberRepository) FindByAssignedUser(ctx context.Context, userID uuid.UUID) (*models.VirtualNumber, error) {
	var vn models.VirtualNumber
	err := r.db.WithContext(ctx).Where("assigned_user_id = ?", userID).First(&vn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vn, nil
}

// FindByNumber gets a pool row by its number.
func (r *VirtualNumberRepository) FindByNumber(ctx context.Context, number string) (*models.VirtualNumber, error) {
	var vn models.VirtualNumber
	err := r.db.WithContext(ctx).Where("number = ?", number).First(&vn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vn, nil
}

// ClaimFree atomically assigns one unassigned number to the user. SKIP
// LOCKED keeps concurrent claims from serializing on the same row.
func (r *VirtualNumberRepository) ClaimFree(ctx context.Context, userID uuid.UUID, at time.Time) (*models.VirtualNumber, error) {
	var vn models.VirtualNumber
	err := r.db.WithContext(ctx).Raw(`
		UPDATE virtual_numbers
		SET assigned_user_id = ?, assigned_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM virtual_numbers
			WHERE assigned_user_id IS NULL
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, userID, at, at).Scan(&vn).Error
	if err != nil {
		return nil, translateDuplicate(err)
	}
	if vn.ID == uuid.Nil {
		return nil, nil
	}
	return &vn, nil
}

// Release clears a user's assignment and returns the freed row.
func (r *VirtualNumberRepository) Release(ctx context.Context, userID uuid.UUID) (*models.VirtualNumber, error) {
	vn, err := r.FindByAssignedUser(ctx, userID)
	if err != nil || vn == nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Model(vn).Updates(map[string]interface{}{
		"assigned_user_id": nil,
		"assigned_at":      nil,
	}).Error
	if err != nil {
		return nil, err
	}
	return vn, nil
}

// DeleteFree removes an unassigned number from the pool.
func (r *VirtualNumberRepository) DeleteFree(ctx context.Context, number string) error {
	result := r.db.WithContext(ctx).
		Where("number = ? AND assigned_user_id IS NULL", number).
		Delete(&models.VirtualNumber{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return services.ErrNumberNotFound
	}
	return nil
}

// ListNumbers returns every number known to the pool, assigned or not.
func (r *VirtualNumberRepository) ListNumbers(ctx context.Context) ([]string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).Model(&models.VirtualNumber{}).Pluck("number", &numbers).Error
	return numbers, err
}

// ListAvailable returns unassigned pool numbers.
func (r *VirtualNumberRepository) ListAvailable(ctx context.Context) ([]models.VirtualNumber, error) {
	var numbers []models.VirtualNumber
	err := r.db.WithContext(ctx).
		Where("assigned_user_id IS NULL").
		Order("created_at ASC").
		Find(&numbers).Error
	return numbers, err
}

// ListAssigned returns current assignments.
func (r *VirtualNumberRepository) ListAssigned(ctx context.Context) ([]models.VirtualNumber, error) {
	var numbers []models.VirtualNumber
	err := r.db.WithContext(ctx).
		Preload("AssignedUser").
		Where("assigned_user_id IS NOT NULL").
		Order("assigned_at ASC").
		Find(&numbers).Error
	return numbers, err
}

// translateDuplicate maps unique constraint violations to the sentinel the
// allocator retries on.
func translateDuplicate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return services.ErrNumberTaken
	}
	// Raw statements bypass GORM's error translation.
	if strings.Contains(err.Error(), "SQLSTATE 23505") || strings.Contains(err.Error(), "duplicate key value") {
		return services.ErrNumberTaken
	}
	return err
}
