package db

// SchemaVersion is the current database schema version
const SchemaVersion = 1

const schema = `
-- Pending mutations; a row exists until the mutation is synced or abandoned
CREATE TABLE IF NOT EXISTS mutations (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    resource_type TEXT NOT NULL,
    action TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT 'null',
    created_at INTEGER NOT NULL,
    tenant TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 3,
    priority TEXT NOT NULL DEFAULT 'medium',
    priority_rank INTEGER NOT NULL DEFAULT 2,
    last_error TEXT NOT NULL DEFAULT ''
);

-- Conflicts parked by the manual strategy
CREATE TABLE IF NOT EXISTS conflicts (
    id TEXT PRIMARY KEY,
    mutation_id TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    action TEXT NOT NULL,
    tenant TEXT NOT NULL,
    client_data TEXT NOT NULL DEFAULT 'null',
    server_data TEXT NOT NULL DEFAULT 'null',
    resolved INTEGER NOT NULL DEFAULT 0,
    resolution TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    resolved_at TEXT
);

-- Last drain summary, one row per engine tenant
CREATE TABLE IF NOT EXISTS sync_metadata (
    tenant TEXT PRIMARY KEY,
    last_sync_time TEXT,
    successful INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0
);

-- Per-mutation outcome log
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    mutation_id TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    action TEXT NOT NULL,
    tenant TEXT NOT NULL,
    outcome TEXT NOT NULL,
    strategy TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL
);

-- Schema info table for version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_mutations_type ON mutations(resource_type);
CREATE INDEX IF NOT EXISTS idx_mutations_tenant ON mutations(tenant);
CREATE INDEX IF NOT EXISTS idx_mutations_created ON mutations(created_at);
CREATE INDEX IF NOT EXISTS idx_mutations_order ON mutations(priority_rank DESC, created_at ASC, seq ASC);
CREATE INDEX IF NOT EXISTS idx_conflicts_type ON conflicts(resource_type);
CREATE INDEX IF NOT EXISTS idx_conflicts_tenant ON conflicts(tenant);
CREATE INDEX IF NOT EXISTS idx_sync_history_ts ON sync_history(timestamp);
`
