package database

import "fmt"

// dynamicSchema returns schema DDL using the configured embedding dimension
func dynamicSchema(embeddingDims int) []string {
	if embeddingDims <= 0 {
		embeddingDims = 4
	}
	return []string{
		// Knowledge items: projects, thoughts, articles. Ids are unique
		// per type, not globally, hence the composite key.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS items (
        user_id TEXT NOT NULL,
        item_type TEXT NOT NULL,
        id TEXT NOT NULL,
        title TEXT NOT NULL,
        body TEXT NOT NULL DEFAULT '',
        entities TEXT,
        embedding F32_BLOB(%d),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (user_id, item_type, id)
    )`, embeddingDims),

		`CREATE TABLE IF NOT EXISTS suggestions (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        from_item_type TEXT NOT NULL,
        from_item_id TEXT NOT NULL,
        to_item_type TEXT NOT NULL,
        to_item_id TEXT NOT NULL,
        reasoning TEXT NOT NULL,
        confidence REAL NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending',
        model_version TEXT,
        degraded INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        resolved_at DATETIME
    )`,

		// memory_a < memory_b (canonical order), so the unique index holds
		// each unordered pair to a single row and makes writes idempotent.
		`CREATE TABLE IF NOT EXISTS bridges (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        memory_a TEXT NOT NULL,
        memory_b TEXT NOT NULL,
        bridge_type TEXT NOT NULL,
        strength REAL NOT NULL,
        entities_shared TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (user_id, memory_a, memory_b)
    )`,

		`CREATE TABLE IF NOT EXISTS connections (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        source_type TEXT NOT NULL,
        source_id TEXT NOT NULL,
        target_type TEXT NOT NULL,
        target_id TEXT NOT NULL,
        connection_type TEXT NOT NULL,
        created_by TEXT NOT NULL,
        ai_reasoning TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,

		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_items_user_type ON items(user_id, item_type)`,
		`CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_suggestions_user_status ON suggestions(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bridges_user ON bridges(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_user ON connections(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_source ON connections(user_id, source_type, source_id)`,

		// Create vector index for similarity search
		`CREATE INDEX IF NOT EXISTS idx_items_embedding ON items(libsql_vector_idx(embedding))`,
	}
}
