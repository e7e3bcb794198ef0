// Package postgres provides the PostgreSQL implementation of the record store.
package postgres

// Schema contains the SQL statements to create the database schema for
// PostgreSQL. All statements are idempotent so the schema can be applied on
// every open.
const Schema = `
-- Records table: one row per evidentiary record, partitioned by
-- (device_id, category). Partitions are replaced wholesale on re-index.
CREATE TABLE IF NOT EXISTS records (
    id BIGSERIAL PRIMARY KEY,
    device_id TEXT NOT NULL,
    category TEXT NOT NULL,
    timestamp TEXT NOT NULL DEFAULT '',

    -- Category-specific payload
    data JSONB NOT NULL,

    -- Pre-lowered flattened text for substring search
    searchable TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_partition ON records(device_id, category);
CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(timestamp);

-- Devices table: one row per extraction unit
CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT '',
    owner TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL,
    merged BOOLEAN NOT NULL DEFAULT FALSE,
    extractions JSONB
);

-- Per-partition record counts. Kept separately from the records table so
-- bulk-JSON categories whose records are loaded lazily still report counts.
CREATE TABLE IF NOT EXISTS device_category_counts (
    device_id TEXT NOT NULL,
    category TEXT NOT NULL,
    count INTEGER NOT NULL,
    PRIMARY KEY (device_id, category)
);

-- Source file index for change detection between refresh passes
CREATE TABLE IF NOT EXISTS file_index (
    path TEXT PRIMARY KEY,
    mtime BIGINT NOT NULL,
    record_count INTEGER NOT NULL DEFAULT 0,
    indexed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Chat threads, scoped to a device by sequence number
CREATE TABLE IF NOT EXISTS chat_threads (
    device_id TEXT NOT NULL,
    thread_id INTEGER NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    started TEXT NOT NULL DEFAULT '',
    participants JSONB,
    message_count INTEGER NOT NULL DEFAULT 0,
    first_date TEXT NOT NULL DEFAULT '',
    last_date TEXT NOT NULL DEFAULT '',
    last_message_preview TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (device_id, thread_id)
);

CREATE TABLE IF NOT EXISTS chat_messages (
    device_id TEXT NOT NULL,
    thread_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    timestamp TEXT NOT NULL DEFAULT '',
    sender TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    source_app TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (device_id, thread_id, seq)
);

-- Discoveries: recomputed wholesale on every index pass
CREATE TABLE IF NOT EXISTS discoveries (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    category TEXT NOT NULL,
    flames INTEGER NOT NULL,
    device_id TEXT NOT NULL DEFAULT '',
    owner TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL DEFAULT '',
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    tags JSONB,
    data_type TEXT NOT NULL DEFAULT '',
    source_app TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_discoveries_category ON discoveries(category);
CREATE INDEX IF NOT EXISTS idx_discoveries_flames ON discoveries(flames);
`
