package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transactions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    ts          TEXT NOT NULL,
    amount      TEXT NOT NULL,
    merchant    TEXT NOT NULL,
    mcc         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_ts ON transactions(user_id, ts);

CREATE TABLE IF NOT EXISTS recurring (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL,
    kind                 TEXT NOT NULL,
    merchant             TEXT NOT NULL,
    merchant_key         TEXT NOT NULL,
    amount               TEXT NOT NULL,
    frequency_days       INTEGER NOT NULL,
    next_due_date        TEXT NOT NULL,
    last_seen            TEXT NOT NULL,
    confidence           REAL NOT NULL,
    missed_count         INTEGER NOT NULL DEFAULT 0,
    active               INTEGER NOT NULL,
    deactivation_reason  TEXT NOT NULL DEFAULT '',
    category             TEXT NOT NULL,
    status               TEXT NOT NULL DEFAULT '',
    difficulty           TEXT NOT NULL DEFAULT '',
    last_used_at         TEXT,
    value_score          REAL NOT NULL DEFAULT 0,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_recurring_active_merchant
    ON recurring(user_id, merchant_key) WHERE active = 1;

CREATE TABLE IF NOT EXISTS goals (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    name        TEXT NOT NULL,
    target      TEXT NOT NULL,
    current     TEXT NOT NULL,
    deadline    TEXT,
    priority    INTEGER NOT NULL DEFAULT 0,
    active      INTEGER NOT NULL,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id);

CREATE TABLE IF NOT EXISTS goal_contributions (
    id          TEXT PRIMARY KEY,
    goal_id     TEXT NOT NULL REFERENCES goals(id),
    amount      TEXT NOT NULL,
    source      TEXT NOT NULL,
    reference   TEXT NOT NULL DEFAULT '',
    ts          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contributions_goal_ts ON goal_contributions(goal_id, ts);
CREATE UNIQUE INDEX IF NOT EXISTS idx_contributions_roundup_ref
    ON goal_contributions(reference) WHERE source = 'round-up';

CREATE TABLE IF NOT EXISTS roundup_config (
    user_id           TEXT PRIMARY KEY,
    enabled           INTEGER NOT NULL,
    rule              TEXT NOT NULL,
    multiplier        INTEGER NOT NULL,
    daily_cap         TEXT,
    weekly_cap        TEXT,
    goal_id           TEXT NOT NULL,
    cadence           TEXT NOT NULL,
    minimum_transfer  TEXT NOT NULL,
    enabled_at        TEXT,
    updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS roundup_evaluations (
    source_transaction_id  TEXT PRIMARY KEY,
    user_id                TEXT NOT NULL,
    outcome                TEXT NOT NULL,
    evaluated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS roundup_transactions (
    id                     TEXT PRIMARY KEY,
    user_id                TEXT NOT NULL,
    source_transaction_id  TEXT NOT NULL UNIQUE,
    original_amount        TEXT NOT NULL,
    round_up               TEXT NOT NULL,
    multiplied             TEXT NOT NULL,
    status                 TEXT NOT NULL,
    goal_id                TEXT NOT NULL,
    batch_id               TEXT NOT NULL DEFAULT '',
    occurred_at            TEXT NOT NULL,
    created_at             TEXT NOT NULL,
    transferred_at         TEXT
);
CREATE INDEX IF NOT EXISTS idx_roundups_user_occurred ON roundup_transactions(user_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_roundups_batch ON roundup_transactions(batch_id);

CREATE TABLE IF NOT EXISTS transfer_batches (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    goal_id      TEXT NOT NULL,
    amount       TEXT NOT NULL,
    status       TEXT NOT NULL,
    attempts     INTEGER NOT NULL DEFAULT 0,
    transfer_id  TEXT NOT NULL DEFAULT '',
    last_error   TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batches_user_status ON transfer_batches(user_id, status);

CREATE TABLE IF NOT EXISTS transfer_state (
    user_id     TEXT PRIMARY KEY,
    last_cycle  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fund_transfers (
    idempotency_key  TEXT PRIMARY KEY,
    transfer_id      TEXT NOT NULL,
    user_id          TEXT NOT NULL,
    goal_id          TEXT NOT NULL,
    amount           TEXT NOT NULL,
    created_at       TEXT NOT NULL
);
`
