package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/aegishq/aegis/internal/access"
	"github.com/aegishq/aegis/internal/models"
)

var (
	ErrRoleNotFound   = errors.New("role not found")
	ErrRoleNameExists = errors.New("role name already exists")
)

// RoleService owns role documents. The decision engine reads roles through
// GetRoles; mutations come from the admin API and must be followed by a
// decision cache invalidation for the users affected.
type RoleService struct {
	db *gorm.DB
}

// NewRoleService returns a RoleService using the provided DB.
func NewRoleService(db *gorm.DB) *RoleService {
	return &RoleService{db: db}
}

// GetRoles loads role documents for a set of role UUIDs. Unknown UUIDs are
// skipped rather than failing the decision.
func (s *RoleService) GetRoles(ctx context.Context, roleIDs []string) ([]models.Role, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var roles []models.Role
	if err := s.db.WithContext(ctx).Where("uuid IN ?", roleIDs).Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return roles, nil
}

// GetByUUID retrieves one role.
func (s *RoleService) GetByUUID(ctx context.Context, uuid string) (*models.Role, error) {
	var role models.Role
	if err := s.db.WithContext(ctx).Where("uuid = ?", uuid).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

// List returns all roles ordered by name.
func (s *RoleService) List(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := s.db.WithContext(ctx).Order("name asc").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// Create persists a new role after validating its permission strings.
func (s *RoleService) Create(ctx context.Context, role *models.Role) error {
	if err := validateRolePermissions(role); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Create(role).Error
	if err != nil && isUniqueViolation(err) {
		return ErrRoleNameExists
	}
	return err
}

// Update saves role changes. Callers must invalidate cached decisions for
// every user holding the role afterwards.
func (s *RoleService) Update(ctx context.Context, role *models.Role) error {
	if err := validateRolePermissions(role); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(role).Error
}

// Delete removes a role by UUID.
func (s *RoleService) Delete(ctx context.Context, uuid string) error {
	res := s.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&models.Role{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// validateRolePermissions rejects empty or whitespace permission strings.
// Unknown permissions are allowed (the catalog is documentation, not an
// enforcement point), malformed ones are not.
func validateRolePermissions(role *models.Role) error {
	for _, perm := range role.PermissionList() {
		if perm == "" {
			return fmt.Errorf("empty permission string on role %q", role.Name)
		}
		if perm != access.Wildcard {
			for _, segment := range strings.Split(perm, ".") {
				if segment == "" {
					return fmt.Errorf("malformed permission %q on role %q", perm, role.Name)
				}
			}
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && (errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(strings.ToLower(err.Error()), "unique"))
}
