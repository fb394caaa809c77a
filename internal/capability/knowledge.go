package capability

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

const knowledgeSearchLimit = 5

// KnowledgeBase is the production Retriever: a local SQLite FTS5 index of
// reference material (statutes, precedents, office notes). It implements
// Retriever; the workflow core never sees SQL.
type KnowledgeBase struct {
	db *sql.DB
}

// OpenKnowledgeBase opens (creating if necessary) the FTS index at path.
func OpenKnowledgeBase(path string) (*KnowledgeBase, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}

	const schema = `CREATE VIRTUAL TABLE IF NOT EXISTS knowledge
		USING fts5(content, source, topic)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create knowledge schema: %w", err)
	}

	return &KnowledgeBase{db: db}, nil
}

// Close releases the underlying database. Implements io.Closer.
func (k *KnowledgeBase) Close() error {
	return k.db.Close()
}

// Add indexes one document.
func (k *KnowledgeBase) Add(ctx context.Context, content, source, topic string) error {
	_, err := k.db.ExecContext(ctx,
		`INSERT INTO knowledge (content, source, topic) VALUES (?, ?, ?)`,
		content, source, topic)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	return nil
}

// Search runs a full-text query and returns ranked snippets, best first.
// An empty result set is returned as an empty slice, not an error; the
// caller's fail-fast rule decides what that means.
//
// Supported filters: "source", "topic" (exact match).
func (k *KnowledgeBase) Search(ctx context.Context, query string, filters map[string]string) ([]Snippet, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	q := `SELECT content, source, topic, bm25(knowledge)
		FROM knowledge WHERE knowledge MATCH ?`
	args := []interface{}{match}

	if source := filters["source"]; source != "" {
		q += ` AND source = ?`
		args = append(args, source)
	}
	if topic := filters["topic"]; topic != "" {
		q += ` AND topic = ?`
		args = append(args, topic)
	}

	q += ` ORDER BY bm25(knowledge) LIMIT ?`
	args = append(args, knowledgeSearchLimit)

	rows, err := k.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	defer rows.Close()

	var snippets []Snippet
	for rows.Next() {
		var content, source, topic string
		var rank float64
		if err := rows.Scan(&content, &source, &topic, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		snippets = append(snippets, Snippet{
			Content: content,
			Metadata: map[string]string{
				"source": source,
				"topic":  topic,
			},
			// bm25 returns smaller-is-better (negative) ranks
			Score: -rank,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	return snippets, nil
}

// ftsQuery converts free text into a safe FTS5 MATCH expression by quoting
// each term, so user punctuation can't inject query syntax.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'?!.,;:()`)
		if f == "" {
			continue
		}
		quoted = append(quoted, strconv.Quote(f))
	}

	return strings.Join(quoted, " OR ")
}
