package sqlite

// Schema creates all tables, indexes and FTS triggers. Every statement is
// idempotent so the schema can be applied on every open.
//
// memories_fts is a contentless-delete FTS5 mirror of memories(content,
// category); the three triggers keep it in sync with every write path,
// including the compression engine's updates.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id        TEXT    NOT NULL DEFAULT 'default',
	content         TEXT    NOT NULL,
	category        TEXT    NOT NULL DEFAULT 'general',
	importance      INTEGER NOT NULL DEFAULT 1 CHECK (importance BETWEEN 1 AND 5),
	decay_score     REAL    NOT NULL DEFAULT 1.0,
	access_count    INTEGER NOT NULL DEFAULT 0,
	last_accessed   TIMESTAMP,
	compressed_into INTEGER REFERENCES memories(id),
	archived_at     TIMESTAMP,
	expires_at      TIMESTAMP,
	embedding       BLOB,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_agent      ON memories (agent_id);
CREATE INDEX IF NOT EXISTS idx_memories_decay      ON memories (decay_score DESC);
CREATE INDEX IF NOT EXISTS idx_memories_compressed ON memories (compressed_into);
CREATE INDEX IF NOT EXISTS idx_memories_category   ON memories (category);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories (importance DESC);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories (created_at DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts
USING fts5(content, category, content='memories', content_rowid='id', tokenize='unicode61');

CREATE TRIGGER IF NOT EXISTS memories_ai
AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts (rowid, content, category)
	VALUES (new.id, new.content, new.category);
END;

CREATE TRIGGER IF NOT EXISTS memories_ad
AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts (memories_fts, rowid, content, category)
	VALUES ('delete', old.id, old.content, old.category);
END;

CREATE TRIGGER IF NOT EXISTS memories_au
AFTER UPDATE ON memories BEGIN
	INSERT INTO memories_fts (memories_fts, rowid, content, category)
	VALUES ('delete', old.id, old.content, old.category);
	INSERT INTO memories_fts (rowid, content, category)
	VALUES (new.id, new.content, new.category);
END;

CREATE TABLE IF NOT EXISTS memory_tags (
	memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	tag       TEXT    NOT NULL,
	PRIMARY KEY (memory_id, tag)
);
CREATE INDEX IF NOT EXISTS idx_tags_tag ON memory_tags (tag);

CREATE TABLE IF NOT EXISTS memory_relations (
	source_id  INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id  INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	relation   TEXT    NOT NULL DEFAULT 'related',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source_id, target_id, relation)
);
CREATE INDEX IF NOT EXISTS idx_relations_source ON memory_relations (source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON memory_relations (target_id);
`
