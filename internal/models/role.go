package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role bundles a named set of permission strings. Roles are administered by an
// external flow; the decision engine only ever reads them.
type Role struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	UUID               string    `json:"uuid" gorm:"uniqueIndex"`
	Name               string    `json:"name" gorm:"uniqueIndex"`
	Description        string    `json:"description"`
	Permissions        string    `json:"-" gorm:"type:text"` // JSON array of permission strings
	IsExternalCustomer bool      `json:"is_external_customer"`
	AllowedRoutes      string    `json:"-" gorm:"type:text"` // JSON array of route patterns
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) (err error) {
	if r.UUID == "" {
		r.UUID = uuid.New().String()
	}
	return
}

// PermissionList decodes the stored permissions. A corrupt column decodes to
// an empty list rather than failing the decision path.
func (r *Role) PermissionList() []string {
	return decodeStringList(r.Permissions)
}

// SetPermissionList encodes and stores the permission strings.
func (r *Role) SetPermissionList(perms []string) error {
	enc, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	r.Permissions = string(enc)
	return nil
}

// RouteList decodes the stored allowed route patterns.
func (r *Role) RouteList() []string {
	return decodeStringList(r.AllowedRoutes)
}

// SetRouteList encodes and stores the allowed route patterns.
func (r *Role) SetRouteList(routes []string) error {
	enc, err := json.Marshal(routes)
	if err != nil {
		return err
	}
	r.AllowedRoutes = string(enc)
	return nil
}

func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
