package postgres

// Schema creates all tables and indexes. Every statement is idempotent so the
// schema can be applied on every open.
//
// The tsv column is a stored tsvector over content and category, kept current
// by a trigger; it is the lexical search primitive, playing the role FTS5
// plays on the SQLite backend.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id              BIGSERIAL PRIMARY KEY,
	agent_id        TEXT    NOT NULL DEFAULT 'default',
	content         TEXT    NOT NULL,
	category        TEXT    NOT NULL DEFAULT 'general',
	importance      INTEGER NOT NULL DEFAULT 1 CHECK (importance BETWEEN 1 AND 5),
	decay_score     DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	access_count    INTEGER NOT NULL DEFAULT 0,
	last_accessed   TIMESTAMPTZ,
	compressed_into BIGINT REFERENCES memories(id),
	archived_at     TIMESTAMPTZ,
	expires_at      TIMESTAMPTZ,
	embedding       BYTEA,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	tsv             tsvector
);

CREATE INDEX IF NOT EXISTS idx_memories_agent      ON memories (agent_id);
CREATE INDEX IF NOT EXISTS idx_memories_decay      ON memories (decay_score DESC);
CREATE INDEX IF NOT EXISTS idx_memories_compressed ON memories (compressed_into);
CREATE INDEX IF NOT EXISTS idx_memories_category   ON memories (category);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories (importance DESC);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_tsv        ON memories USING GIN (tsv);

CREATE OR REPLACE FUNCTION memories_tsv_update() RETURNS trigger AS $$
BEGIN
	NEW.tsv := setweight(to_tsvector('english', COALESCE(NEW.content, '')), 'A')
	        || setweight(to_tsvector('english', COALESCE(NEW.category, '')), 'B');
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS memories_tsv_trigger ON memories;
CREATE TRIGGER memories_tsv_trigger
	BEFORE INSERT OR UPDATE OF content, category
	ON memories
	FOR EACH ROW
	EXECUTE FUNCTION memories_tsv_update();

CREATE TABLE IF NOT EXISTS memory_tags (
	memory_id BIGINT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	tag       TEXT   NOT NULL,
	PRIMARY KEY (memory_id, tag)
);
CREATE INDEX IF NOT EXISTS idx_tags_tag ON memory_tags (tag);

CREATE TABLE IF NOT EXISTS memory_relations (
	source_id  BIGINT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id  BIGINT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	relation   TEXT   NOT NULL DEFAULT 'related',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (source_id, target_id, relation)
);
CREATE INDEX IF NOT EXISTS idx_relations_source ON memory_relations (source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON memory_relations (target_id);
`

// MigrationPgvector adds the vector column and its cosine index. Applied only
// when the vector extension loaded; safe to run repeatedly.
//
// ivfflat refuses to build on an empty table, so index creation is guarded on
// at least one row existing. Until then searches fall back to a sequential
// scan, which is fine at that size.
const MigrationPgvector = `
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_name = 'memories' AND column_name = 'embedding_vec'
	) THEN
		ALTER TABLE memories ADD COLUMN embedding_vec vector;
	END IF;
END
$$;

DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_indexes WHERE indexname = 'idx_memories_vec_cosine'
	) THEN
		IF EXISTS (SELECT 1 FROM memories WHERE embedding_vec IS NOT NULL LIMIT 1) THEN
			EXECUTE 'CREATE INDEX idx_memories_vec_cosine ON memories USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
		END IF;
	END IF;
END
$$;
`
