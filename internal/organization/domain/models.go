// Package domain contains core types for the organization directory.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization kinds.
const (
	KindTopAuthority = "top_authority"
	KindUniversity   = "university"
	KindAssociation  = "university_association"
	KindAidSchool    = "aid_school"
)

// Admin role codes bound to organizations.
const (
	RoleTopAuthorityAdmin = "top_authority_admin"
	RoleUniversityAdmin   = "university_admin"
	RoleAssociationAdmin  = "university_association_admin"
	RoleAidSchoolAdmin    = "aid_school_admin"
)

// Organization is a node in the review hierarchy. Universities and their
// associations share a SchoolCode; aid schools carry an AidSchoolCode and
// hang directly under the top authority.
type Organization struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	Kind               string            `gorm:"type:text;not null;index" json:"kind"`
	DisplayName        string            `gorm:"type:text;not null" json:"display_name"`
	Slug               string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	SchoolCode         string            `gorm:"type:text;index" json:"school_code,omitempty"`
	AidSchoolCode      string            `gorm:"type:text;index" json:"aid_school_code,omitempty"`
	ParentUniversityID *snowflake.ID     `gorm:"column:parent_university_id;index" json:"parent_university_id,omitempty"`
	Certified          bool              `gorm:"not null;default:false" json:"certified"`
	HasLiveAdmin       bool              `gorm:"column:has_live_admin;not null;default:false" json:"has_live_admin"`
	Disabled           bool              `gorm:"not null;default:false" json:"disabled"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// AdminBinding grants a user a role code, scoped to an organization except
// for top-authority admins whose OrgID is nil.
type AdminBinding struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_admin_bindings,priority:1" json:"user_id"`
	RoleCode  string        `gorm:"type:text;not null;uniqueIndex:ux_admin_bindings,priority:2" json:"role_code"`
	OrgID     *snowflake.ID `gorm:"column:org_id;index;uniqueIndex:ux_admin_bindings,priority:3" json:"org_id,omitempty"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (AdminBinding) TableName() string { return "admin_bindings" }

// RoleCodeForKind maps an organization kind to the admin role that governs it.
func RoleCodeForKind(kind string) (string, bool) {
	switch kind {
	case KindUniversity:
		return RoleUniversityAdmin, true
	case KindAssociation:
		return RoleAssociationAdmin, true
	case KindAidSchool:
		return RoleAidSchoolAdmin, true
	case KindTopAuthority:
		return RoleTopAuthorityAdmin, true
	default:
		return "", false
	}
}

// ValidKind reports whether kind names a known organization kind.
func ValidKind(kind string) bool {
	switch kind {
	case KindTopAuthority, KindUniversity, KindAssociation, KindAidSchool:
		return true
	default:
		return false
	}
}
