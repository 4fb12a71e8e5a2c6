//go:build !sqlite_fts5

package index

// ftsSchemaSQL is the FTS4 variant, available in every go-sqlite3 build.
// FTS4 reads the old content back from thumbnail when removing index
// entries, so removal runs BEFORE the row changes and insertion AFTER.
const ftsSchemaSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS thumbnail_fts USING fts4(
	content="thumbnail",
	fullName,
	tokenize=unicode61
);

CREATE TRIGGER IF NOT EXISTS thumbnail_ai AFTER INSERT ON thumbnail BEGIN
	INSERT INTO thumbnail_fts(docid, fullName) VALUES (new.id, new.fullName);
END;

CREATE TRIGGER IF NOT EXISTS thumbnail_bd BEFORE DELETE ON thumbnail BEGIN
	DELETE FROM thumbnail_fts WHERE docid = old.id;
END;

CREATE TRIGGER IF NOT EXISTS thumbnail_bu BEFORE UPDATE OF fullName ON thumbnail BEGIN
	DELETE FROM thumbnail_fts WHERE docid = old.id;
END;

CREATE TRIGGER IF NOT EXISTS thumbnail_au AFTER UPDATE OF fullName ON thumbnail BEGIN
	INSERT INTO thumbnail_fts(docid, fullName) VALUES (new.id, new.fullName);
END;
`
