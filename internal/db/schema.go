package db

const schema = `
CREATE TABLE IF NOT EXISTS cached_passages (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    reference   TEXT UNIQUE NOT NULL,
    text        TEXT NOT NULL,
    created_at  DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cached_studies (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    reference      TEXT UNIQUE NOT NULL,
    study_content  TEXT NOT NULL,
    provider       TEXT NOT NULL DEFAULT '',
    created_at     DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reading_history (
    id           TEXT PRIMARY KEY,
    book         TEXT NOT NULL DEFAULT '',
    chapter      INTEGER NOT NULL DEFAULT 0,
    start_verse  INTEGER,
    end_verse    INTEGER,
    reference    TEXT NOT NULL,
    provider     TEXT NOT NULL DEFAULT '',
    created_at   DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_history_created ON reading_history(created_at);
`
