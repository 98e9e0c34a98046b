package authz

import (
	"fmt"

	"github.com/google/uuid"
)

// AccessibleProjects is the computed scope of a caller within one
// organization: which project-scoped entities a list query may return.
type AccessibleProjects struct {
	// IncludeOrgLevel is true when entities with no project are visible
	// (the caller holds an org membership).
	IncludeOrgLevel bool
	// ProjectIDs are the projects whose entities are visible: the caller's
	// direct-membership projects plus, for org members, all open projects.
	ProjectIDs []uuid.UUID
	// Strict is set when the caller narrowed the request to one project;
	// ProjectIDs then holds exactly that project and org-level rows are excluded.
	Strict bool
}

// Empty reports whether the scope admits nothing.
func (a AccessibleProjects) Empty() bool {
	return !a.IncludeOrgLevel && len(a.ProjectIDs) == 0
}

// Predicate renders the scope as a single conjunctive SQL fragment over the
// given column, using one bind argument starting at argN. Every list query
// appends this fragment verbatim so scoping evaluates in one query.
func (a AccessibleProjects) Predicate(column string, argN int) (string, []any) {
	if a.Strict {
		return fmt.Sprintf("%s = $%d", column, argN), []any{a.ProjectIDs[0]}
	}

	switch {
	case a.IncludeOrgLevel && len(a.ProjectIDs) > 0:
		return fmt.Sprintf("(%s IS NULL OR %s = ANY($%d))", column, column, argN),
			[]any{a.ProjectIDs}
	case a.IncludeOrgLevel:
		return fmt.Sprintf("%s IS NULL", column), nil
	case len(a.ProjectIDs) > 0:
		return fmt.Sprintf("%s = ANY($%d)", column, argN), []any{a.ProjectIDs}
	default:
		// Nothing visible. FALSE keeps the query shape intact.
		return "FALSE", nil
	}
}
