// Package store is the offline cache: a SQLite snapshot of the projects,
// tasks and collaborators last received from the server.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/uptask/internal/model"
)

// ErrNotCached is returned when the cache holds no copy of a project.
var ErrNotCached = errors.New("not in cache")

// SQLiteStore caches server data in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases and the foreign_keys
	// pragma consistent across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var v int
	if err := s.db.Get(&v, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		currentVersion, err = s.SchemaVersion()
		if err != nil {
			return err
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SaveProjects replaces the cached project list. Projects missing from
// projects are dropped together with their tasks and collaborators.
func (s *SQLiteStore) SaveProjects(ctx context.Context, projects []model.Project) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if len(projects) == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM projects"); err != nil {
			return fmt.Errorf("clearing projects: %w", err)
		}
		return tx.Commit()
	}

	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	query, args, err := sqlx.In("DELETE FROM projects WHERE id NOT IN (?)", ids)
	if err != nil {
		return fmt.Errorf("building prune query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("pruning projects: %w", err)
	}

	for i, p := range projects {
		if err := upsertProject(ctx, tx, p, i); err != nil {
			return err
		}
		if err := replaceCollaborators(ctx, tx, p.ID, p.Collaborators); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetProjects returns the cached project list in server order.
func (s *SQLiteStore) GetProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.SelectContext(ctx, &projects, `
		SELECT id, name, description, deadline, client, owner, created_at
		FROM projects ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}

	for i := range projects {
		collabs, err := s.collaborators(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].Collaborators = collabs
	}
	return projects, nil
}

// SaveProjectDetail caches one project with its tasks and collaborators,
// replacing any previous copy.
func (s *SQLiteStore) SaveProjectDetail(ctx context.Context, detail model.ProjectDetail) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	p := detail.Project
	position := -1
	err = tx.GetContext(ctx, &position, "SELECT position FROM projects WHERE id = ?", p.ID)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.GetContext(ctx, &position, "SELECT COALESCE(MAX(position), -1) + 1 FROM projects")
	}
	if err != nil {
		return fmt.Errorf("reading position of project %s: %w", p.ID, err)
	}
	if err := upsertProject(ctx, tx, p, position); err != nil {
		return err
	}

	collabs := detail.Collaborators
	if len(collabs) == 0 {
		collabs = p.Collaborators
	}
	if err := replaceCollaborators(ctx, tx, p.ID, collabs); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE project_id = ?", p.ID); err != nil {
		return fmt.Errorf("clearing tasks of project %s: %w", p.ID, err)
	}

	const query = `
		INSERT INTO tasks (
			id, project_id, name, description, deadline, priority, completed,
			completed_by_id, completed_by_name, completed_by_email,
			created_at, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing task insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range detail.Tasks {
		var byID, byName, byEmail sql.NullString
		if t.CompletedBy != nil {
			byID = sql.NullString{String: t.CompletedBy.ID, Valid: true}
			byName = sql.NullString{String: t.CompletedBy.Name, Valid: true}
			byEmail = sql.NullString{String: t.CompletedBy.Email, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			t.ID, p.ID, t.Name, t.Description, t.Deadline.UTC(), string(t.Priority),
			boolToInt(t.Completed), byID, byName, byEmail,
			t.CreatedAt.UTC(), i,
		)
		if err != nil {
			return fmt.Errorf("caching task %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// taskRow is a tasks row with the flattened completedBy user.
type taskRow struct {
	model.Task
	CompletedByID    sql.NullString `db:"completed_by_id"`
	CompletedByName  sql.NullString `db:"completed_by_name"`
	CompletedByEmail sql.NullString `db:"completed_by_email"`
}

// GetProjectDetail returns the cached copy of a project. It returns an
// error wrapping ErrNotCached when there is none.
func (s *SQLiteStore) GetProjectDetail(ctx context.Context, id string) (*model.ProjectDetail, error) {
	var p model.Project
	err := s.db.GetContext(ctx, &p, `
		SELECT id, name, description, deadline, client, owner, created_at
		FROM projects WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotCached)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", id, err)
	}

	collabs, err := s.collaborators(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Collaborators = collabs

	var rows []taskRow
	err = s.db.SelectContext(ctx, &rows, `
		SELECT id, project_id, name, description, deadline, priority, completed,
			completed_by_id, completed_by_name, completed_by_email, created_at
		FROM tasks WHERE project_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying tasks of project %s: %w", id, err)
	}

	tasks := make([]model.Task, len(rows))
	for i, r := range rows {
		tasks[i] = r.Task
		if r.CompletedByID.Valid {
			tasks[i].CompletedBy = &model.User{
				ID:    r.CompletedByID.String,
				Name:  r.CompletedByName.String,
				Email: r.CompletedByEmail.String,
			}
		}
	}

	return &model.ProjectDetail{
		Project:       p,
		Tasks:         tasks,
		Collaborators: collabs,
	}, nil
}

// Clear removes every cached row.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"tasks", "collaborators", "projects"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) collaborators(ctx context.Context, projectID string) ([]model.User, error) {
	users := []model.User{}
	err := s.db.SelectContext(ctx, &users, `
		SELECT user_id AS id, name, email FROM collaborators
		WHERE project_id = ? ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying collaborators of project %s: %w", projectID, err)
	}
	return users, nil
}

func upsertProject(ctx context.Context, tx *sqlx.Tx, p model.Project, position int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, deadline, client, owner, created_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			deadline = excluded.deadline,
			client = excluded.client,
			owner = excluded.owner,
			created_at = excluded.created_at,
			position = excluded.position`,
		p.ID, p.Name, p.Description, p.Deadline.UTC(), p.Client, p.Owner, p.CreatedAt.UTC(), position,
	)
	if err != nil {
		return fmt.Errorf("caching project %s: %w", p.ID, err)
	}
	return nil
}

func replaceCollaborators(ctx context.Context, tx *sqlx.Tx, projectID string, users []model.User) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM collaborators WHERE project_id = ?", projectID); err != nil {
		return fmt.Errorf("clearing collaborators of project %s: %w", projectID, err)
	}
	for i, u := range users {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO collaborators (project_id, user_id, name, email, position)
			VALUES (?, ?, ?, ?, ?)`,
			projectID, u.ID, u.Name, u.Email, i,
		)
		if err != nil {
			return fmt.Errorf("caching collaborator %s: %w", u.ID, err)
		}
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
