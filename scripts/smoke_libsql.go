//go:build integration
// +build integration

package scripts

import (
	"fmt"
	"log"
	"os"

	"github.com/rs/zerolog"

	"github.com/mnema-labs/mnema/mnema/db"
)

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// RunSmokeLibSQL verifies the embedded database features the indexes rely
// on: migrations, FTS5 matching over chunk text, and the session index.
func RunSmokeLibSQL() {
	fmt.Println("Smoke test: LibSQL embedded features")
	tmp := "./smoke.db"
	defer os.Remove(tmp)

	conn, err := db.Connect(tmp, zerolog.Nop())
	must(err, "connect")
	defer conn.Close()

	var v int
	err = conn.QueryRow("SELECT 1").Scan(&v)
	must(err, "basic SELECT")
	if v != 1 {
		log.Fatalf("basic SELECT returned %v", v)
	}
	fmt.Println("OK: basic SQL")

	must(db.Migrate(conn), "migrate")
	fmt.Println("OK: migrations")

	// FTS5 over the chunks table
	_, err = conn.Exec(`INSERT INTO parent_documents (doc_id, source_file, full_text, trust_weight, indexed_at, last_referenced_at)
		VALUES ('smoke-doc', 'smoke.md', 'spooler restart fixes error 0x8007', 1.0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	must(err, "insert parent")
	_, err = conn.Exec(`INSERT INTO chunks (chunk_id, doc_id, seq, text, token_count)
		VALUES ('smoke-chunk', 'smoke-doc', 0, 'spooler restart fixes error 0x8007', 8)`)
	must(err, "insert chunk")
	_, err = conn.Exec(`INSERT INTO chunks_fts (chunk_id, doc_id, text)
		VALUES ('smoke-chunk', 'smoke-doc', 'spooler restart fixes error 0x8007')`)
	must(err, "insert fts row")

	var chunkID string
	err = conn.QueryRow(`SELECT chunk_id FROM chunks_fts WHERE chunks_fts MATCH '"0x8007"' LIMIT 1`).Scan(&chunkID)
	must(err, "fts match")
	if chunkID != "smoke-chunk" {
		log.Fatalf("fts match returned %q", chunkID)
	}
	fmt.Println("OK: FTS5 match")

	// Session index round trip
	_, err = conn.Exec(`INSERT INTO session_index (session_id, started_at, title, token_count, drift_events, record_path)
		VALUES ('smoke-session', CURRENT_TIMESTAMP, 'smoke', 42, 0, 'sessions.jsonl')`)
	must(err, "insert session")
	var tokens int
	err = conn.QueryRow(`SELECT token_count FROM session_index WHERE session_id = 'smoke-session'`).Scan(&tokens)
	must(err, "select session")
	if tokens != 42 {
		log.Fatalf("session row returned %v tokens", tokens)
	}
	fmt.Println("OK: session index")

	fmt.Println("Smoke test complete")
}
