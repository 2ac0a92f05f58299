package history

// Schema contains the DDL for the verification history.
const Schema = `
-- One row per verification call (one design-reference step).
CREATE TABLE IF NOT EXISTS verifications (
    id             TEXT PRIMARY KEY,
    run_id         TEXT NOT NULL,
    feature        TEXT NOT NULL DEFAULT '',
    scenario       TEXT NOT NULL DEFAULT '',
    reference      TEXT NOT NULL,
    browser        TEXT NOT NULL,
    region_x       INTEGER NOT NULL,
    region_y       INTEGER NOT NULL,
    region_w       INTEGER NOT NULL,
    region_h       INTEGER NOT NULL,
    outcome        TEXT NOT NULL,
    passed         INTEGER NOT NULL,
    score          REAL NOT NULL,
    retries        INTEGER NOT NULL DEFAULT 0,
    attempts       TEXT NOT NULL DEFAULT '[]',
    candidate      TEXT NOT NULL DEFAULT '',
    baseline       TEXT NOT NULL DEFAULT '',
    diff           TEXT NOT NULL DEFAULT '',
    phash_distance INTEGER NOT NULL DEFAULT -1,
    started_at     INTEGER NOT NULL,
    duration_ms    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_verifications_run ON verifications(run_id, started_at);
CREATE INDEX IF NOT EXISTS idx_verifications_reference ON verifications(reference, browser);
CREATE INDEX IF NOT EXISTS idx_verifications_outcome ON verifications(outcome);
`
