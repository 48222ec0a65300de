package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id        TEXT PRIMARY KEY,
	content   TEXT NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}',
	embedding BLOB NOT NULL
)`

// SQLiteStore persists documents and embeddings in a single SQLite file.
// Search loads all vectors and ranks them in process, which suits corpora
// of a few thousand documents.
type SQLiteStore struct {
	db    *sql.DB
	embed Embedder
}

// OpenSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway store.
func OpenSQLiteStore(ctx context.Context, path string, e Embedder) (*SQLiteStore, error) {
	if e == nil {
		e = NewHashEmbedder(0)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("knowledge: sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open sqlite: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writes
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("knowledge: sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, embed: e}, nil
}

func (s *SQLiteStore) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lookupErr error
	err = checkBatch(docs, func(id string) bool {
		var one int
		switch err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, id).Scan(&one); err {
		case nil:
			return true
		case sql.ErrNoRows:
			return false
		default:
			lookupErr = err
			return false
		}
	})
	if lookupErr != nil {
		return fmt.Errorf("knowledge: sqlite lookup: %w", lookupErr)
	}
	if err != nil {
		return err
	}

	vecs, err := s.embed.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("knowledge: embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return ErrDimension
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (id, content, metadata, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, string(meta), encodeVector(vecs[i])); err != nil {
			return fmt.Errorf("knowledge: insert %q: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	q, err := embedOne(ctx, forQuery(s.embed), query)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("knowledge: sqlite search: %w", err)
	}
	defer rows.Close()

	var cands []scored
	for rows.Next() {
		var (
			d    Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&d.ID, &d.Content, &meta, &blob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("knowledge: metadata of %q: %w", d.ID, err)
		}
		cands = append(cands, scored{doc: d, dist: cosineDistance(q, decodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(cands, topK), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("knowledge: sqlite count: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
