package runstore

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS task_run (
    run_id INTEGER PRIMARY KEY AUTOINCREMENT,
    store_code TEXT NOT NULL,
    task_name TEXT NOT NULL,
    task_id TEXT NOT NULL,
    process_id INTEGER NOT NULL DEFAULT 0,
    test BOOLEAN NOT NULL DEFAULT FALSE,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    empty_run BOOLEAN NOT NULL DEFAULT FALSE,
    max_memory_usage INTEGER NOT NULL DEFAULT 0,
    start_at TIMESTAMP NOT NULL,
    finish_at TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_task_run_task_name ON task_run(task_name)`,
	`CREATE INDEX IF NOT EXISTS idx_task_run_finish_at ON task_run(finish_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS task_run (
    run_id BIGSERIAL PRIMARY KEY,
    store_code TEXT NOT NULL,
    task_name TEXT NOT NULL,
    task_id TEXT NOT NULL,
    process_id INTEGER NOT NULL DEFAULT 0,
    test BOOLEAN NOT NULL DEFAULT FALSE,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    empty_run BOOLEAN NOT NULL DEFAULT FALSE,
    max_memory_usage BIGINT NOT NULL DEFAULT 0,
    start_at TIMESTAMPTZ NOT NULL,
    finish_at TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS idx_task_run_task_name ON task_run(task_name)`,
	`CREATE INDEX IF NOT EXISTS idx_task_run_finish_at ON task_run(finish_at)`,
}
