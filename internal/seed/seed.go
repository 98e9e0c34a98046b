// Package seed loads a demo dataset for local development: an organization
// with a project, users, a group with a rotation schedule, and an escalation
// policy wired to the group.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Run inserts the demo dataset. It is idempotent: re-running against a
// seeded database is a no-op.
func Run(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	var exists bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = 'devco')`,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking for existing seed data: %w", err)
	}
	if exists {
		logger.Info("seed data already present, skipping")
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var orgID string
	if err := tx.QueryRow(ctx, `
		INSERT INTO organizations (slug, name) VALUES ('devco', 'DevCo')
		RETURNING id`,
	).Scan(&orgID); err != nil {
		return fmt.Errorf("seeding organization: %w", err)
	}

	var platformProject string
	if err := tx.QueryRow(ctx, `
		INSERT INTO projects (org_id, slug, name) VALUES ($1, 'platform', 'Platform')
		RETURNING id`, orgID,
	).Scan(&platformProject); err != nil {
		return fmt.Errorf("seeding project: %w", err)
	}

	users := []struct {
		email, name, orgRole string
	}{
		{"alice@devco.example", "Alice Chen", "owner"},
		{"bob@devco.example", "Bob Okafor", "admin"},
		{"carol@devco.example", "Carol Novak", "member"},
	}
	userIDs := make([]string, 0, len(users))
	for _, u := range users {
		var id string
		if err := tx.QueryRow(ctx, `
			INSERT INTO users (email, display_name) VALUES ($1, $2) RETURNING id`,
			u.email, u.name,
		).Scan(&id); err != nil {
			return fmt.Errorf("seeding user %s: %w", u.email, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO memberships (user_id, role, resource_type, resource_id)
			VALUES ($1, $2, 'org', $3)`,
			id, u.orgRole, orgID,
		); err != nil {
			return fmt.Errorf("seeding membership for %s: %w", u.email, err)
		}
		userIDs = append(userIDs, id)
	}

	var groupID string
	if err := tx.QueryRow(ctx, `
		INSERT INTO groups (org_id, project_id, name, visibility)
		VALUES ($1, $2, 'SRE Primary', 'organization')
		RETURNING id`, orgID, platformProject,
	).Scan(&groupID); err != nil {
		return fmt.Errorf("seeding group: %w", err)
	}

	var scheduleID string
	if err := tx.QueryRow(ctx, `
		INSERT INTO schedules (org_id, group_id, name) VALUES ($1, $2, 'Weekly rotation')
		RETURNING id`, orgID, groupID,
	).Scan(&scheduleID); err != nil {
		return fmt.Errorf("seeding schedule: %w", err)
	}

	// One weekly layer rotating all three users, anchored on a Monday 09:00 UTC.
	anchor := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if _, err := tx.Exec(ctx, `
		INSERT INTO schedule_layers (schedule_id, position, participants, shift_length_seconds, anchor)
		VALUES ($1, 0, $2, $3, $4)`,
		scheduleID, userIDs, int64((7 * 24 * time.Hour).Seconds()), anchor,
	); err != nil {
		return fmt.Errorf("seeding schedule layer: %w", err)
	}

	var policyID string
	if err := tx.QueryRow(ctx, `
		INSERT INTO escalation_policies (org_id, name, description)
		VALUES ($1, 'Default escalation', 'On-call first, then the group on-call, then the org owner')
		RETURNING id`, orgID,
	).Scan(&policyID); err != nil {
		return fmt.Errorf("seeding escalation policy: %w", err)
	}

	levels := []struct {
		number     int
		targetType string
		targetID   *string
		timeout    time.Duration
	}{
		{1, "current_schedule", nil, 5 * time.Minute},
		{2, "group", &groupID, 10 * time.Minute},
		{3, "user", &userIDs[0], 15 * time.Minute},
	}
	for _, l := range levels {
		if _, err := tx.Exec(ctx, `
			INSERT INTO escalation_levels (policy_id, level_number, target_type, target_id, timeout_seconds)
			VALUES ($1, $2, $3, $4, $5)`,
			policyID, l.number, l.targetType, l.targetID, int64(l.timeout.Seconds()),
		); err != nil {
			return fmt.Errorf("seeding escalation level %d: %w", l.number, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO uptime_monitors (org_id, project_id, name, url, group_id, escalation_policy_id)
		VALUES ($1, $2, 'Public site', 'https://devco.example', $3, $4)`,
		orgID, platformProject, groupID, policyID,
	); err != nil {
		return fmt.Errorf("seeding uptime monitor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing seed transaction: %w", err)
	}

	logger.Info("seed data loaded", "org", "devco", "users", len(users))
	return nil
}
