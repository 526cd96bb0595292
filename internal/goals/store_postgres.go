package goals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initGoalSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initGoalSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS goals (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			priority TEXT NOT NULL,
			state TEXT NOT NULL,
			locked BOOLEAN NOT NULL DEFAULT FALSE,
			progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			parent_id TEXT NOT NULL DEFAULT '',
			child_ids TEXT[] NOT NULL DEFAULT '{}',
			order_index INTEGER NOT NULL DEFAULT 0,
			has_breakdown BOOLEAN NOT NULL DEFAULT FALSE,
			autopilot BOOLEAN NOT NULL DEFAULT FALSE,
			target_date TIMESTAMPTZ NULL,
			locked_snapshot JSONB NULL,
			insight_summary TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_goals_parent ON goals (parent_id, order_index);`,
		`CREATE INDEX IF NOT EXISTS idx_goals_state ON goals (state, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS goal_revisions (
			id TEXT PRIMARY KEY,
			goal_id TEXT NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			summary TEXT NOT NULL,
			rationale TEXT NOT NULL DEFAULT '',
			at TIMESTAMPTZ NOT NULL,
			snapshot JSONB NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_goal_revisions_goal_seq ON goal_revisions (goal_id, seq);`,
		`CREATE TABLE IF NOT EXISTS goal_sessions (
			goal_id TEXT NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
			external_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			start_at TIMESTAMPTZ NOT NULL,
			end_at TIMESTAMPTZ NULL,
			status TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (goal_id, external_id)
		);`,
		`CREATE TABLE IF NOT EXISTS goal_edges (
			prerequisite_id TEXT NOT NULL,
			dependent_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			PRIMARY KEY (prerequisite_id, dependent_id)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init goal schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveGoal(ctx context.Context, g Goal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var snapshotJSON []byte
	if g.LockedSnapshot != nil {
		snapshotJSON, err = json.Marshal(g.LockedSnapshot)
		if err != nil {
			return fmt.Errorf("marshal locked snapshot: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO goals (
			id, title, content, category, kind, priority, state, locked, progress,
			parent_id, child_ids, order_index, has_breakdown, autopilot, target_date,
			locked_snapshot, insight_summary, last_error, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
		)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title,
			content=EXCLUDED.content,
			category=EXCLUDED.category,
			kind=EXCLUDED.kind,
			priority=EXCLUDED.priority,
			state=EXCLUDED.state,
			locked=EXCLUDED.locked,
			progress=EXCLUDED.progress,
			parent_id=EXCLUDED.parent_id,
			child_ids=EXCLUDED.child_ids,
			order_index=EXCLUDED.order_index,
			has_breakdown=EXCLUDED.has_breakdown,
			autopilot=EXCLUDED.autopilot,
			target_date=EXCLUDED.target_date,
			locked_snapshot=EXCLUDED.locked_snapshot,
			insight_summary=EXCLUDED.insight_summary,
			last_error=EXCLUDED.last_error,
			created_at=EXCLUDED.created_at,
			updated_at=EXCLUDED.updated_at`,
		g.ID,
		g.Title,
		g.Content,
		g.Category,
		string(g.Kind),
		string(g.Priority),
		string(g.State),
		g.Locked,
		g.Progress,
		g.ParentID,
		g.ChildIDs,
		g.OrderIndex,
		g.HasBreakdown,
		g.Autopilot,
		g.TargetDate,
		snapshotJSON,
		g.InsightSummary,
		g.LastError,
		g.CreatedAt,
		g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert goal: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM goal_revisions WHERE goal_id=$1`, g.ID); err != nil {
		return fmt.Errorf("delete prior revisions: %w", err)
	}
	for i, rev := range g.Revisions {
		var revSnapshot []byte
		if rev.Snapshot != nil {
			revSnapshot, err = json.Marshal(rev.Snapshot)
			if err != nil {
				return fmt.Errorf("marshal revision snapshot: %w", err)
			}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO goal_revisions (id, goal_id, seq, summary, rationale, at, snapshot)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			rev.ID, g.ID, i, rev.Summary, rev.Rationale, rev.At, revSnapshot,
		)
		if err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM goal_sessions WHERE goal_id=$1`, g.ID); err != nil {
		return fmt.Errorf("delete prior sessions: %w", err)
	}
	for _, link := range g.Sessions {
		var endAt *time.Time
		if !link.End.IsZero() {
			end := link.End
			endAt = &end
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO goal_sessions (goal_id, external_id, title, start_at, end_at, status)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			g.ID, link.ExternalID, link.Title, link.Start, endAt, link.Status,
		)
		if err != nil {
			return fmt.Errorf("insert session link: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGoal(ctx context.Context, id string) (Goal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, content, category, kind, priority, state, locked, progress,
		        parent_id, child_ids, order_index, has_breakdown, autopilot, target_date,
		        locked_snapshot, insight_summary, last_error, created_at, updated_at
		   FROM goals WHERE id=$1`,
		id,
	)
	g, err := scanGoalRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Goal{}, ErrStoreNotFound
		}
		return Goal{}, fmt.Errorf("get goal: %w", err)
	}
	if g.Revisions, err = s.loadRevisions(ctx, g.ID); err != nil {
		return Goal{}, err
	}
	if g.Sessions, err = s.loadSessions(ctx, g.ID); err != nil {
		return Goal{}, err
	}
	return g, nil
}

func (s *PostgresStore) ListGoals(ctx context.Context, limit int) ([]Goal, error) {
	query := `SELECT id, title, content, category, kind, priority, state, locked, progress,
	                 parent_id, child_ids, order_index, has_breakdown, autopilot, target_date,
	                 locked_snapshot, insight_summary, last_error, created_at, updated_at
	            FROM goals ORDER BY created_at DESC`
	// limit <= 0 lists everything, for working-set hydration.
	args := make([]any, 0, 1)
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	out := make([]Goal, 0, 16)
	for rows.Next() {
		g, err := scanGoalRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal row: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goal rows: %w", err)
	}
	for i := range out {
		if out[i].Revisions, err = s.loadRevisions(ctx, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Sessions, err = s.loadSessions(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) DeleteGoal(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM goals WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReplaceEdges(ctx context.Context, edges []DependencyEdge) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM goal_edges`); err != nil {
		return fmt.Errorf("delete prior edges: %w", err)
	}
	for _, e := range edges {
		_, err := tx.Exec(ctx,
			`INSERT INTO goal_edges (prerequisite_id, dependent_id, kind) VALUES ($1,$2,$3)
			 ON CONFLICT (prerequisite_id, dependent_id) DO NOTHING`,
			e.PrerequisiteID, e.DependentID, string(e.Kind),
		)
		if err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEdges(ctx context.Context) ([]DependencyEdge, error) {
	rows, err := s.pool.Query(ctx, `SELECT prerequisite_id, dependent_id, kind FROM goal_edges`)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	out := make([]DependencyEdge, 0)
	for rows.Next() {
		var e DependencyEdge
		var kind string
		if err := rows.Scan(&e.PrerequisiteID, &e.DependentID, &kind); err != nil {
			return nil, fmt.Errorf("scan edge row: %w", err)
		}
		e.Kind = DependencyKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edge rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) loadRevisions(ctx context.Context, goalID string) ([]Revision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, summary, rationale, at, snapshot
		   FROM goal_revisions WHERE goal_id=$1 ORDER BY seq ASC`,
		goalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	out := make([]Revision, 0, 4)
	for rows.Next() {
		var rev Revision
		var snapshotJSON []byte
		if err := rows.Scan(&rev.ID, &rev.Summary, &rev.Rationale, &rev.At, &snapshotJSON); err != nil {
			return nil, fmt.Errorf("scan revision row: %w", err)
		}
		if len(snapshotJSON) > 0 {
			var snap Snapshot
			if err := json.Unmarshal(snapshotJSON, &snap); err == nil {
				rev.Snapshot = &snap
			}
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revision rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) loadSessions(ctx context.Context, goalID string) ([]SessionLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT external_id, title, start_at, end_at, status
		   FROM goal_sessions WHERE goal_id=$1 ORDER BY start_at ASC`,
		goalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list session links: %w", err)
	}
	defer rows.Close()

	out := make([]SessionLink, 0, 4)
	for rows.Next() {
		var link SessionLink
		var endNullable *time.Time
		if err := rows.Scan(&link.ExternalID, &link.Title, &link.Start, &endNullable, &link.Status); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if endNullable != nil {
			link.End = *endNullable
		}
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func scanGoalRow(row pgx.Row) (Goal, error) {
	var (
		g            Goal
		kind         string
		priority     string
		state        string
		targetDate   *time.Time
		snapshotJSON []byte
	)
	if err := row.Scan(
		&g.ID,
		&g.Title,
		&g.Content,
		&g.Category,
		&kind,
		&priority,
		&state,
		&g.Locked,
		&g.Progress,
		&g.ParentID,
		&g.ChildIDs,
		&g.OrderIndex,
		&g.HasBreakdown,
		&g.Autopilot,
		&targetDate,
		&snapshotJSON,
		&g.InsightSummary,
		&g.LastError,
		&g.CreatedAt,
		&g.UpdatedAt,
	); err != nil {
		return Goal{}, err
	}
	g.Kind = GoalKind(kind)
	g.Priority = Priority(priority)
	g.State = ActivationState(state)
	g.TargetDate = targetDate
	if len(snapshotJSON) > 0 {
		var snap Snapshot
		if err := json.Unmarshal(snapshotJSON, &snap); err == nil {
			g.LockedSnapshot = &snap
		}
	}
	return g, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
