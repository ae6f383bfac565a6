package access

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
)

// Repository persists principals and their optional permission rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, row *models.Principal) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.Email = normalizeEmail(row.Email)
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	var row models.Principal
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByEmail matches case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	var row models.Principal
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", normalizeEmail(email)).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("id = ?", id).
		UpdateColumn("last_sign_in_at", at).Error
}

func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, role enums.Role) error {
	res := r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("id = ?", id).
		Updates(map[string]any{"role": role, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindPermissions returns nil when the principal has no stored row.
func (r *Repository) FindPermissions(ctx context.Context, principalID uuid.UUID) (*models.FeaturePermissions, error) {
	var rows []models.FeaturePermissions
	err := r.db.WithContext(ctx).
		Where("principal_id = ?", principalID).
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (r *Repository) UpsertPermissions(ctx context.Context, row *models.FeaturePermissions) error {
	row.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "principal_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"can_create", "can_edit", "can_delete", "updated_at"}),
		}).
		Create(row).Error
}

// List returns principals ordered by email with their permission rows keyed
// by principal id.
func (r *Repository) List(ctx context.Context) ([]models.Principal, map[uuid.UUID]models.FeaturePermissions, error) {
	var rows []models.Principal
	if err := r.db.WithContext(ctx).Order("email ASC").Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	perms := make(map[uuid.UUID]models.FeaturePermissions, len(rows))
	if len(rows) == 0 {
		return rows, perms, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var permRows []models.FeaturePermissions
	if err := r.db.WithContext(ctx).Where("principal_id IN ?", ids).Find(&permRows).Error; err != nil {
		return nil, nil, err
	}
	for _, p := range permRows {
		perms[p.PrincipalID] = p
	}
	return rows, perms, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Principal{}).Count(&count).Error
	return count, err
}

// IsDuplicateEmail reports a violation of the case-insensitive email index.
func IsDuplicateEmail(err error) bool {
	return dbpkg.IsUniqueViolation(err, "ux_principals_email") || dbpkg.IsUniqueViolation(err, "principals.email")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("id = ?", id).
		Updates(map[string]any{"password_hash": hash, "updated_at": time.Now().UTC()}).Error
}
