// Package seed loads demo organizations and accounts for local and staging
// environments so the review flows can be exercised without manual setup.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	authdomain "github.com/yunzhijiao/bridge/internal/auth/domain"
	"github.com/yunzhijiao/bridge/internal/auth/password"
	organizationdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	orgrepository "github.com/yunzhijiao/bridge/internal/organization/repository"
	orgservice "github.com/yunzhijiao/bridge/internal/organization/service"
)

const demoPassword = "123456"

type demoOrg struct {
	kind        string
	code        string
	displayName string
}

type demoUser struct {
	username    string
	email       string
	displayName string
	roleCode    string
	orgKind     string
	orgCode     string
}

var demoOrgs = []demoOrg{
	{organizationdomain.KindUniversity, "PKU", "Peking University"},
	{organizationdomain.KindUniversity, "THU", "Tsinghua University"},
	{organizationdomain.KindUniversity, "FDU", "Fudan University"},
	{organizationdomain.KindAssociation, "PKU", "Peking University Volunteer Teaching Association"},
	{organizationdomain.KindAssociation, "THU", "Tsinghua University Volunteer Teaching Association"},
	{organizationdomain.KindAidSchool, "ZT1Z", "Zhaotong No.1 Middle School"},
}

var demoUsers = []demoUser{
	{"superadmin", "superadmin@bridge.local", "Platform Admin", organizationdomain.RoleTopAuthorityAdmin, "", ""},
	{"pku_admin", "pku_admin@bridge.local", "PKU Admin", organizationdomain.RoleUniversityAdmin, organizationdomain.KindUniversity, "PKU"},
	{"pku_assoc_admin", "pku_assoc_admin@bridge.local", "PKU Association Admin", organizationdomain.RoleAssociationAdmin, organizationdomain.KindAssociation, "PKU"},
	{"zt1z_admin", "zt1z_admin@bridge.local", "ZT1Z Admin", organizationdomain.RoleAidSchoolAdmin, organizationdomain.KindAidSchool, "ZT1Z"},
	{"student_pku", "student_pku@bridge.local", "Demo Student", "", "", ""},
	{"teacher_pku", "teacher_pku@bridge.local", "Demo Teacher", "", "", ""},
}

// Run inserts the demo directory and accounts. Every step is idempotent so
// repeated startups leave existing rows untouched.
func Run(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := orgrepository.NewRepository(tx)
		now := time.Now().UTC()

		for _, o := range demoOrgs {
			if _, _, err := orgservice.EnsureOrganization(ctx, repo, node, now, o.kind, o.code, o.displayName); err != nil {
				return err
			}
		}

		for _, u := range demoUsers {
			user, err := ensureUserTx(ctx, tx, node, u)
			if err != nil {
				return err
			}
			if u.roleCode == "" {
				continue
			}

			var orgID *snowflake.ID
			if u.orgKind != "" {
				org, err := repo.FindByKindAndCode(ctx, u.orgKind, u.orgCode)
				if err != nil {
					return err
				}
				orgID = &org.ID
			}
			if err := ensureBindingTx(ctx, tx, node, user.ID, u.roleCode, orgID); err != nil {
				return err
			}
			if orgID != nil {
				err := tx.WithContext(ctx).
					Model(&organizationdomain.Organization{}).
					Where("id = ?", *orgID).
					Update("has_live_admin", true).Error
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func ensureUserTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, u demoUser) (authdomain.User, error) {
	var user authdomain.User
	err := tx.WithContext(ctx).Where("username = ?", u.username).First(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return user, err
	}

	hashed, err := password.Hash(demoPassword)
	if err != nil {
		return user, err
	}
	now := time.Now().UTC()
	user = authdomain.User{
		ID:           node.Generate(),
		Username:     u.username,
		Email:        strings.ToLower(u.email),
		DisplayName:  u.displayName,
		PasswordHash: &hashed,
		Active:       true,
		IsDefault:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return user, err
	}
	return user, nil
}

func ensureBindingTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, userID snowflake.ID, roleCode string, orgID *snowflake.ID) error {
	q := tx.WithContext(ctx).Where("user_id = ? AND role_code = ?", userID, roleCode)
	if orgID != nil {
		q = q.Where("org_id = ?", *orgID)
	} else {
		q = q.Where("org_id IS NULL")
	}

	var binding organizationdomain.AdminBinding
	err := q.First(&binding).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	binding = organizationdomain.AdminBinding{
		ID:        node.Generate(),
		UserID:    userID,
		RoleCode:  roleCode,
		OrgID:     orgID,
		CreatedAt: time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&binding).Error
}
