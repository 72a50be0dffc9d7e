package history

const schema = `
CREATE TABLE IF NOT EXISTS executions (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    exit_code INTEGER,
    duration_ms INTEGER,
    changed_files TEXT,
    session_id TEXT,
    quota_exceeded BOOLEAN DEFAULT FALSE,
    error_message TEXT,
    workspace_path TEXT,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_executions_task_id ON executions(task_id);
CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at);

CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    tasks_processed INTEGER DEFAULT 0,
    tasks_completed INTEGER DEFAULT 0,
    tasks_failed INTEGER DEFAULT 0,
    tasks_paused INTEGER DEFAULT 0,
    halted_on_quota BOOLEAN DEFAULT FALSE
);
`
