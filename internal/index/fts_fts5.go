//go:build sqlite_fts5

package index

// ftsSchemaSQL keeps thumbnail_fts in step with thumbnail through triggers.
// The FTS5 table is external-content, so only the token index is stored.
const ftsSchemaSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS thumbnail_fts USING fts5(
	fullName,
	content = 'thumbnail',
	content_rowid = 'id',
	tokenize = 'unicode61'
);

CREATE TRIGGER IF NOT EXISTS thumbnail_ai AFTER INSERT ON thumbnail BEGIN
	INSERT INTO thumbnail_fts(rowid, fullName) VALUES (new.id, new.fullName);
END;

CREATE TRIGGER IF NOT EXISTS thumbnail_ad AFTER DELETE ON thumbnail BEGIN
	INSERT INTO thumbnail_fts(thumbnail_fts, rowid, fullName) VALUES ('delete', old.id, old.fullName);
END;

CREATE TRIGGER IF NOT EXISTS thumbnail_au AFTER UPDATE OF fullName ON thumbnail BEGIN
	INSERT INTO thumbnail_fts(thumbnail_fts, rowid, fullName) VALUES ('delete', old.id, old.fullName);
	INSERT INTO thumbnail_fts(rowid, fullName) VALUES (new.id, new.fullName);
END;
`
