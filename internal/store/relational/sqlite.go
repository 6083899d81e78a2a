// Package relational implements the relational artifact store backend
// (§4.6): a SQLite-backed store via database/sql and mattn/go-sqlite3.
// Grounded directly on original_source/krangler/store.py's DatabaseStore
// (there written against Postgres via psycopg), adapted to a single-file
// embedded engine since the pipeline's relational backend needs no
// standalone server.
package relational

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/digest"
	"github.com/pale-court/krangler-go/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS data (
	content_hash BLOB PRIMARY KEY NOT NULL,
	data BLOB NOT NULL,
	compression TEXT
);
CREATE TABLE IF NOT EXISTS idx (
	gid INTEGER NOT NULL,
	kind TEXT NOT NULL,
	data BLOB NOT NULL,
	compression TEXT NOT NULL,
	PRIMARY KEY (gid, kind)
);
CREATE TABLE IF NOT EXISTS depot_fact (
	depot INTEGER NOT NULL,
	gid INTEGER NOT NULL,
	fact TEXT NOT NULL,
	PRIMARY KEY (depot, gid, fact)
);
`

// Driver is a store.Store backed by a SQLite database.
type Driver struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at dsn and ensures the
// schema exists.
func Open(dsn string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("relational store: open %s: %w", dsn, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("relational store: migrate schema: %w", err)
	}
	return &Driver{db: db}, nil
}

// Close releases the underlying database handle.
func (d *Driver) Close() error { return d.db.Close() }

// compressIfSmaller implements §4.6's "min(raw, zstd(raw))" object storage
// policy, returning the bytes to persist and the compression tag.
func compressIfSmaller(data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, "", err
	}
	if _, err := w.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	if buf.Len() < len(data) {
		return buf.Bytes(), "zstd", nil
	}
	return data, "", nil
}

func decompressTagged(data []byte, compression string) ([]byte, error) {
	switch compression {
	case "":
		return data, nil
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("relational store: unknown compression tag %q", compression)
	}
}

type bulkWriter struct {
	db  *sql.DB
	tx  *sql.Tx
	err error
}

// WriteDataBulk implements store.Store.
func (d *Driver) WriteDataBulk(context.Context) (store.BulkWriter, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	return &bulkWriter{db: d.db, tx: tx}, nil
}

func (b *bulkWriter) Store(dg digest.Digest, data []byte) error {
	if b.err != nil {
		return b.err
	}
	body, compression, err := compressIfSmaller(data)
	if err != nil {
		b.err = err
		return err
	}
	_, err = b.tx.Exec(`INSERT OR IGNORE INTO data (content_hash, data, compression) VALUES (?, ?, ?)`,
		dg[:], body, nullIfEmpty(compression))
	if err != nil {
		b.err = err
	}
	return err
}

func (b *bulkWriter) Commit() error {
	if b.err != nil {
		b.tx.Rollback()
		return b.err
	}
	return b.tx.Commit()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ListMissingObjects implements store.Store via a temporary-table
// bulk-insert followed by an anti-join, as in the grounding source.
func (d *Driver) ListMissingObjects(ctx context.Context, digests []digest.Digest) ([]digest.Digest, error) {
	if len(digests) == 0 {
		return nil, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TEMP TABLE candidates (addr BLOB PRIMARY KEY NOT NULL)`); err != nil {
		return nil, err
	}
	defer tx.Exec(`DROP TABLE IF EXISTS candidates`)

	stmt, err := tx.Prepare(`INSERT INTO candidates (addr) VALUES (?)`)
	if err != nil {
		return nil, err
	}
	for _, dg := range digests {
		if _, err := stmt.Exec(dg[:]); err != nil {
			stmt.Close()
			return nil, err
		}
	}
	stmt.Close()

	rows, err := tx.Query(`
		SELECT addr FROM candidates
		WHERE NOT EXISTS (SELECT 1 FROM data WHERE content_hash = candidates.addr)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missing []digest.Digest
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		dg, err := digest.FromRawBytes(raw)
		if err != nil {
			return nil, err
		}
		missing = append(missing, dg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return missing, tx.Commit()
}

// ReadData implements store.Store.
func (d *Driver) ReadData(ctx context.Context, dg digest.Digest) ([]byte, error) {
	var data []byte
	var compression sql.NullString
	err := d.db.QueryRowContext(ctx, `SELECT data, compression FROM data WHERE content_hash = ?`, dg[:]).
		Scan(&data, &compression)
	if err == sql.ErrNoRows {
		return nil, store.ErrObjectAbsent
	}
	if err != nil {
		return nil, err
	}
	return decompressTagged(data, compression.String)
}

// IndexWriter implements store.Store. It buffers the Zstd-framed NDJSON in
// memory and upserts it on Commit, matching the grounding source's
// ON CONFLICT DO UPDATE semantics (re-ingest overwrites, §3 lifecycle).
func (d *Driver) IndexWriter(ctx context.Context, id depot.ID, kind depot.Kind) (store.IndexWriter, error) {
	iw := &indexWriter{ctx: ctx, db: d.db, id: id, kind: kind}
	zw, err := zstd.NewWriter(&iw.buf)
	if err != nil {
		return nil, err
	}
	iw.zw = zw
	return iw, nil
}

type indexWriter struct {
	ctx  context.Context
	db   *sql.DB
	id   depot.ID
	kind depot.Kind
	buf  bytes.Buffer
	zw   *zstd.Encoder
	done bool
}

func (w *indexWriter) Write(p []byte) (int, error) { return w.zw.Write(p) }

func (w *indexWriter) Commit() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.zw.Close(); err != nil {
		return err
	}
	_, err := w.db.ExecContext(w.ctx, `
		INSERT INTO idx (gid, kind, data, compression) VALUES (?, ?, ?, 'zstd')
		ON CONFLICT (gid, kind) DO UPDATE SET data = excluded.data, compression = excluded.compression
	`, w.id.Manifest, string(w.kind), w.buf.Bytes())
	return err
}

func (w *indexWriter) Abort() error {
	w.done = true
	return nil
}

// IndexReader implements store.Store.
func (d *Driver) IndexReader(ctx context.Context, id depot.ID, kind depot.Kind) (io.ReadCloser, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx, `SELECT data FROM idx WHERE gid = ? AND kind = ?`, id.Manifest, string(kind)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, store.ErrIndexAbsent
	}
	if err != nil {
		return nil, err
	}
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &store.IndexReadError{Depot: id.Depot, Manifest: id.Manifest, Kind: kind, Err: err}
	}
	return readCloser{zr}, nil
}

type readCloser struct{ zr *zstd.Decoder }

func (r readCloser) Read(p []byte) (int, error) { return r.zr.Read(p) }
func (r readCloser) Close() error               { r.zr.Close(); return nil }

// HasDepotFact implements store.Store.
func (d *Driver) HasDepotFact(ctx context.Context, id depot.ID, fact depot.Fact) (bool, error) {
	var dummy int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM depot_fact WHERE depot = ? AND gid = ? AND fact = ?`,
		id.Depot, id.Manifest, string(fact)).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetDepotFact implements store.Store.
func (d *Driver) SetDepotFact(ctx context.Context, id depot.ID, fact depot.Fact) error {
	_, err := d.db.ExecContext(ctx, `INSERT OR IGNORE INTO depot_fact (depot, gid, fact) VALUES (?, ?, ?)`,
		id.Depot, id.Manifest, string(fact))
	return err
}

// UnsetDepotFact implements store.Store.
func (d *Driver) UnsetDepotFact(ctx context.Context, id depot.ID, fact depot.Fact) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM depot_fact WHERE depot = ? AND gid = ? AND fact = ?`,
		id.Depot, id.Manifest, string(fact))
	return err
}
