package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS harmony_call_logs (
	id             BIGSERIAL PRIMARY KEY,
	correlation_id TEXT NOT NULL DEFAULT '',
	endpoint       TEXT NOT NULL,
	method         VARCHAR(8) NOT NULL,
	status_code    INTEGER NOT NULL DEFAULT 0,
	status_message TEXT NOT NULL DEFAULT '',
	header         TEXT NOT NULL DEFAULT '',
	request        TEXT NOT NULL DEFAULT '',
	response       TEXT NOT NULL DEFAULT '',
	uid            TEXT NOT NULL DEFAULT '',
	created        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS harmony_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
