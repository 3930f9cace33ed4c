package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	deadline    DATETIME NOT NULL,
	client      TEXT NOT NULL DEFAULT '',
	owner       TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	position    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tasks (
	id                 TEXT PRIMARY KEY,
	project_id         TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name               TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	deadline           DATETIME NOT NULL,
	priority           TEXT NOT NULL CHECK(priority IN ('low', 'medium', 'high')),
	completed          INTEGER NOT NULL DEFAULT 0 CHECK(completed IN (0, 1)),
	completed_by_id    TEXT,
	completed_by_name  TEXT,
	completed_by_email TEXT,
	created_at         DATETIME NOT NULL,
	position           INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);

CREATE TABLE IF NOT EXISTS collaborators (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	position   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, user_id)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_projects_position ON projects(position);
CREATE INDEX IF NOT EXISTS idx_tasks_project_position ON tasks(project_id, position);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
