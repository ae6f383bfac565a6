package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/pkg/enums"
)

// Principal is an authenticated identity with a coarse role.
type Principal struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email        string     `gorm:"column:email;not null;uniqueIndex"`
	DisplayName  string     `gorm:"column:display_name;not null"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	Role         enums.Role `gorm:"column:role;not null;default:'user'"`
	LastSignInAt *time.Time `gorm:"column:last_sign_in_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// FeaturePermissions holds explicit order permission flags. A missing row
// means every flag is granted.
type FeaturePermissions struct {
	PrincipalID uuid.UUID `gorm:"column:principal_id;type:uuid;primaryKey"`
	CanCreate   bool      `gorm:"column:can_create;not null"`
	CanEdit     bool      `gorm:"column:can_edit;not null"`
	CanDelete   bool      `gorm:"column:can_delete;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (FeaturePermissions) TableName() string {
	return "feature_permissions"
}
