package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tutorbase/schedule-api/internal/models"
)

// ListingRepository reads listing records. Listings are managed by the
// marketplace profile service; this API only consumes them for pricing and
// capacity.
type ListingRepository struct {
	db *sqlx.DB
}

// NewListingRepository constructs the repository.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// FindByID returns a listing by its identifier.
func (r *ListingRepository) FindByID(ctx context.Context, id string) (*models.Listing, error) {
	const query = `SELECT id, teacher_id, title, subject, class_kind, capacity, hourly_rate, total_sessions, created_at
        FROM listings WHERE id = $1`
	var listing models.Listing
	if err := r.db.GetContext(ctx, &listing, query, id); err != nil {
		return nil, err
	}
	return &listing, nil
}

// ListByTeacher returns a teacher's listings.
func (r *ListingRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Listing, error) {
	const query = `SELECT id, teacher_id, title, subject, class_kind, capacity, hourly_rate, total_sessions, created_at
        FROM listings WHERE teacher_id = $1 ORDER BY created_at`
	var listings []models.Listing
	if err := r.db.SelectContext(ctx, &listings, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher listings: %w", err)
	}
	return listings, nil
}
