package authz

import (
	"testing"

	"github.com/google/uuid"
)

func TestPermissionMatrix(t *testing.T) {
	tests := []struct {
		name   string
		matrix PermissionMatrix
		role   Role
		action Action
		want   bool
	}{
		{"owner deletes org", OrgPermissions, RoleOwner, ActionDelete, true},
		{"admin cannot delete org", OrgPermissions, RoleAdmin, ActionDelete, false},
		{"admin manages org members", OrgPermissions, RoleAdmin, ActionManageMembers, true},
		{"member creates in org", OrgPermissions, RoleMember, ActionCreate, true},
		{"member cannot update org", OrgPermissions, RoleMember, ActionUpdate, false},
		{"viewer views org", OrgPermissions, RoleViewer, ActionView, true},
		{"viewer cannot create", OrgPermissions, RoleViewer, ActionCreate, false},
		{"admin deletes project", ProjectPermissions, RoleAdmin, ActionDelete, true},
		{"member cannot manage project members", ProjectPermissions, RoleMember, ActionManageMembers, false},
		{"unknown role denied", OrgPermissions, Role("root"), ActionView, false},
		{"empty role denied", OrgPermissions, Role(""), ActionView, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPermission(tt.matrix, tt.role, tt.action); got != tt.want {
				t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.action, got, tt.want)
			}
		})
	}
}

func TestMapOrgRoleToProjectRole(t *testing.T) {
	tests := []struct {
		orgRole Role
		want    Role
	}{
		{RoleOwner, RoleAdmin},
		{RoleAdmin, RoleAdmin},
		{RoleMember, RoleMember},
		{RoleViewer, RoleViewer},
	}
	for _, tt := range tests {
		if got := MapOrgRoleToProjectRole(tt.orgRole); got != tt.want {
			t.Errorf("MapOrgRoleToProjectRole(%s) = %s, want %s", tt.orgRole, got, tt.want)
		}
	}
}

func TestScopePredicate(t *testing.T) {
	p1 := uuid.New()
	p2 := uuid.New()

	t.Run("strict", func(t *testing.T) {
		scope := AccessibleProjects{Strict: true, ProjectIDs: []uuid.UUID{p1}}
		sql, args := scope.Predicate("project_id", 3)
		if sql != "project_id = $3" {
			t.Errorf("sql = %q", sql)
		}
		if len(args) != 1 || args[0] != p1 {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("org level plus projects", func(t *testing.T) {
		scope := AccessibleProjects{IncludeOrgLevel: true, ProjectIDs: []uuid.UUID{p1, p2}}
		sql, args := scope.Predicate("project_id", 2)
		want := "(project_id IS NULL OR project_id = ANY($2))"
		if sql != want {
			t.Errorf("sql = %q, want %q", sql, want)
		}
		if len(args) != 1 {
			t.Fatalf("args = %v", args)
		}
		ids, ok := args[0].([]uuid.UUID)
		if !ok || len(ids) != 2 {
			t.Errorf("args[0] = %v", args[0])
		}
	})

	t.Run("org level only", func(t *testing.T) {
		scope := AccessibleProjects{IncludeOrgLevel: true}
		sql, args := scope.Predicate("project_id", 1)
		if sql != "project_id IS NULL" {
			t.Errorf("sql = %q", sql)
		}
		if args != nil {
			t.Errorf("args = %v, want nil", args)
		}
	})

	t.Run("projects only", func(t *testing.T) {
		scope := AccessibleProjects{ProjectIDs: []uuid.UUID{p1}}
		sql, _ := scope.Predicate("project_id", 1)
		if sql != "project_id = ANY($1)" {
			t.Errorf("sql = %q", sql)
		}
	})

	t.Run("empty scope", func(t *testing.T) {
		scope := AccessibleProjects{}
		sql, args := scope.Predicate("project_id", 1)
		if sql != "FALSE" || args != nil {
			t.Errorf("sql = %q args = %v", sql, args)
		}
		if !scope.Empty() {
			t.Error("Empty() = false, want true")
		}
	})
}

func TestValidRole(t *testing.T) {
	for _, r := range []Role{RoleOwner, RoleAdmin, RoleMember, RoleViewer} {
		if !ValidRole(r) {
			t.Errorf("ValidRole(%s) = false", r)
		}
	}
	if ValidRole(Role("superuser")) {
		t.Error("ValidRole(superuser) = true")
	}
}
