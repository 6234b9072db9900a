package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteStorage implements Storage on SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx, so the same
// statement helpers serve direct calls and transactional calls.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// openDatabase opens SQLite with WAL and a single writer connection.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath
// and applies pending migrations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SchemaVersion reports the most recently applied migration version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (string, error) {
	version, err := schemaVersion(ctx, s.db)
	if err != nil {
		return "", err
	}
	return version.String(), nil
}

// RollbackSchema reverts the most recently applied migration, for
// downgrading the database before running an older binary.
func (s *SQLiteStorage) RollbackSchema(ctx context.Context) error {
	return RollbackMigration(ctx, s.db)
}

// Index operations

func (s *SQLiteStorage) CreateIndex(ctx context.Context, idx *Index) error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if idx.Dimension <= 0 {
		return errors.New("index dimension must be positive")
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO indexes (name, root_path, provider, model, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		idx.Name, idx.RootPath, idx.Provider, idx.Model, idx.Dimension, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: index %s", ErrAlreadyExists, idx.Name)
		}
		return fmt.Errorf("create index: %w", err)
	}

	idx.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get index id: %w", err)
	}
	idx.CreatedAt = now
	idx.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) GetIndex(ctx context.Context, name string) (*Index, error) {
	return scanIndex(s.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, provider, model, dimension,
		       last_indexed_at, created_at, updated_at
		FROM indexes WHERE name = ?`, name))
}

func (s *SQLiteStorage) GetIndexByID(ctx context.Context, indexID int64) (*Index, error) {
	return scanIndex(s.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, provider, model, dimension,
		       last_indexed_at, created_at, updated_at
		FROM indexes WHERE id = ?`, indexID))
}

func scanIndex(row *sql.Row) (*Index, error) {
	var idx Index
	var lastIndexed sql.NullTime
	err := row.Scan(&idx.ID, &idx.Name, &idx.RootPath, &idx.Provider, &idx.Model,
		&idx.Dimension, &lastIndexed, &idx.CreatedAt, &idx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: index", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get index: %w", err)
	}
	if lastIndexed.Valid {
		idx.LastIndexedAt = lastIndexed.Time
	}
	return &idx, nil
}

func (s *SQLiteStorage) UpdateIndex(ctx context.Context, idx *Index) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE indexes SET root_path = ?, provider = ?, model = ?,
		       last_indexed_at = ?, updated_at = ?
		WHERE id = ?`,
		idx.RootPath, idx.Provider, idx.Model, idx.LastIndexedAt, now, idx.ID)
	if err != nil {
		return fmt.Errorf("update index: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: index %d", ErrNotFound, idx.ID)
	}
	idx.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) ListIndexes(ctx context.Context) ([]*Index, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, root_path, provider, model, dimension,
		       last_indexed_at, created_at, updated_at
		FROM indexes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var indexes []*Index
	for rows.Next() {
		var idx Index
		var lastIndexed sql.NullTime
		if err := rows.Scan(&idx.ID, &idx.Name, &idx.RootPath, &idx.Provider,
			&idx.Model, &idx.Dimension, &lastIndexed, &idx.CreatedAt, &idx.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		if lastIndexed.Valid {
			idx.LastIndexedAt = lastIndexed.Time
		}
		indexes = append(indexes, &idx)
	}
	return indexes, rows.Err()
}

func (s *SQLiteStorage) DeleteIndex(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM indexes WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: index %s", ErrNotFound, name)
	}
	return nil
}

// Ledger operations

const fileColumns = `id, index_id, path, language, content_hash, size_bytes, mod_time,
	symbol_count, chunk_count, parse_failed, parse_error, embed_pending,
	indexed_at, created_at, updated_at`

func (s *SQLiteStorage) GetFile(ctx context.Context, indexID int64, path string) (*FileRecord, error) {
	return s.getFileWithQuerier(ctx, s.db, indexID, path)
}

func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, indexID int64, path string) (*FileRecord, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE index_id = ? AND path = ?",
		indexID, path)
	file, err := scanFile(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, path)
	}
	return file, err
}

func (s *SQLiteStorage) GetFileByID(ctx context.Context, fileID int64) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE id = ?", fileID)
	file, err := scanFile(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: file %d", ErrNotFound, fileID)
	}
	return file, err
}

func scanFile(scan func(...interface{}) error) (*FileRecord, error) {
	var f FileRecord
	var hash []byte
	var parseError sql.NullString
	var modTime, indexedAt sql.NullTime
	err := scan(&f.ID, &f.IndexID, &f.Path, &f.Language, &hash, &f.SizeBytes,
		&modTime, &f.SymbolCount, &f.ChunkCount, &f.ParseFailed, &parseError,
		&f.EmbedPending, &indexedAt, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	copy(f.ContentHash[:], hash)
	if parseError.Valid {
		f.ParseError = parseError.String
	}
	if modTime.Valid {
		f.ModTime = modTime.Time
	}
	if indexedAt.Valid {
		f.IndexedAt = indexedAt.Time
	}
	return &f, nil
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, indexID int64) ([]*FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE index_id = ? ORDER BY path", indexID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []*FileRecord
	for rows.Next() {
		file, err := scanFile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFilePaths(ctx context.Context, indexID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path FROM files WHERE index_id = ? ORDER BY path", indexID)
	if err != nil {
		return nil, fmt.Errorf("list file paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// DeleteFile removes a file's ledger row; chunks, FTS rows, and
// embeddings go with it via cascades and triggers.
func (s *SQLiteStorage) DeleteFile(ctx context.Context, indexID int64, path string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM files WHERE index_id = ? AND path = ?", indexID, path)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: file %s", ErrNotFound, path)
	}
	return nil
}

// ReplaceFileChunks swaps a file's indexed state in one transaction.
// A reader sees either the old chunk set or the new one, never a mix.
func (s *SQLiteStorage) ReplaceFileChunks(ctx context.Context, file *FileRecord, chunks []*ChunkRecord, embeddings []*EmbeddingRecord) error {
	if embeddings != nil && len(embeddings) != len(chunks) {
		return fmt.Errorf("embeddings length %d does not match chunks length %d",
			len(embeddings), len(chunks))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	fileID, err := s.upsertFileWithQuerier(ctx, tx, file)
	if err != nil {
		return err
	}
	file.ID = fileID

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	for i, chunk := range chunks {
		chunk.FileID = fileID
		chunkID, err := s.insertChunkWithQuerier(ctx, tx, chunk)
		if err != nil {
			return err
		}
		chunk.ID = chunkID

		if embeddings == nil || embeddings[i] == nil {
			continue
		}
		emb := embeddings[i]
		emb.ChunkID = chunkID
		if err := s.upsertEmbeddingWithQuerier(ctx, tx, emb); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit file replace: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *FileRecord) (int64, error) {
	now := time.Now()
	if file.IndexedAt.IsZero() {
		file.IndexedAt = now
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO files (index_id, path, language, content_hash, size_bytes, mod_time,
		                   symbol_count, chunk_count, parse_failed, parse_error,
		                   embed_pending, indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(index_id, path) DO UPDATE SET
		    language = excluded.language,
		    content_hash = excluded.content_hash,
		    size_bytes = excluded.size_bytes,
		    mod_time = excluded.mod_time,
		    symbol_count = excluded.symbol_count,
		    chunk_count = excluded.chunk_count,
		    parse_failed = excluded.parse_failed,
		    parse_error = excluded.parse_error,
		    embed_pending = excluded.embed_pending,
		    indexed_at = excluded.indexed_at,
		    updated_at = excluded.updated_at`,
		file.IndexID, file.Path, file.Language, file.ContentHash[:], file.SizeBytes,
		file.ModTime, file.SymbolCount, file.ChunkCount, file.ParseFailed,
		nullString(file.ParseError), file.EmbedPending, file.IndexedAt, now, now)
	if err != nil {
		return 0, fmt.Errorf("upsert file %s: %w", file.Path, err)
	}

	var fileID int64
	err = q.QueryRowContext(ctx,
		"SELECT id FROM files WHERE index_id = ? AND path = ?",
		file.IndexID, file.Path).Scan(&fileID)
	if err != nil {
		return 0, fmt.Errorf("resolve file id: %w", err)
	}
	return fileID, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Chunk operations

const chunkColumns = `id, file_id, content, content_hash, language,
	start_line, end_line, start_byte, end_byte,
	symbol_name, symbol_kind, symbol_signature, hierarchy_path,
	symbol_start_line, symbol_end_line, created_at`

func (s *SQLiteStorage) insertChunkWithQuerier(ctx context.Context, q querier, chunk *ChunkRecord) (int64, error) {
	result, err := q.ExecContext(ctx, `
		INSERT INTO chunks (file_id, content, content_hash, language,
		                    start_line, end_line, start_byte, end_byte,
		                    symbol_name, symbol_kind, symbol_signature, hierarchy_path,
		                    symbol_start_line, symbol_end_line, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chunk.FileID, chunk.Content, chunk.ContentHash[:], chunk.Language,
		chunk.StartLine, chunk.EndLine, chunk.StartByte, chunk.EndByte,
		chunk.SymbolName, chunk.SymbolKind, chunk.SymbolSignature, chunk.HierarchyPath,
		chunk.SymbolStartLine, chunk.SymbolEndLine, time.Now())
	if err != nil {
		return 0, fmt.Errorf("insert chunk: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID int64) (*ChunkRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE id = ?", chunkID)
	chunk, err := scanChunk(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chunk %d", ErrNotFound, chunkID)
	}
	return chunk, err
}

func (s *SQLiteStorage) GetChunks(ctx context.Context, chunkIDs []int64) (map[int64]*ChunkRecord, error) {
	if len(chunkIDs) == 0 {
		return map[int64]*ChunkRecord{}, nil
	}

	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chunks := make(map[int64]*ChunkRecord, len(chunkIDs))
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks[chunk.ID] = chunk
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunksByFile(ctx context.Context, fileID int64) ([]*ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE file_id = ? ORDER BY start_line", fileID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*ChunkRecord
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func scanChunk(scan func(...interface{}) error) (*ChunkRecord, error) {
	var c ChunkRecord
	var hash []byte
	var symbolName, symbolKind, symbolSignature, hierarchyPath sql.NullString
	err := scan(&c.ID, &c.FileID, &c.Content, &hash, &c.Language,
		&c.StartLine, &c.EndLine, &c.StartByte, &c.EndByte,
		&symbolName, &symbolKind, &symbolSignature, &hierarchyPath,
		&c.SymbolStartLine, &c.SymbolEndLine, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	copy(c.ContentHash[:], hash)
	c.SymbolName = symbolName.String
	c.SymbolKind = symbolKind.String
	c.SymbolSignature = symbolSignature.String
	c.HierarchyPath = hierarchyPath.String
	return &c, nil
}

// Embedding operations

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, emb *EmbeddingRecord) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.db, emb)
}

func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, emb *EmbeddingRecord) error {
	if emb.Dimension <= 0 || len(emb.Vector) != emb.Dimension*4 {
		return fmt.Errorf("%w: vector blob is %d bytes for dimension %d",
			ErrDimensionMismatch, len(emb.Vector), emb.Dimension)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
		    vector = excluded.vector,
		    dimension = excluded.dimension,
		    provider = excluded.provider,
		    model = excluded.model`,
		emb.ChunkID, emb.Vector, emb.Dimension, emb.Provider, emb.Model, time.Now())
	if err != nil {
		return fmt.Errorf("upsert embedding for chunk %d: %w", emb.ChunkID, err)
	}
	return nil
}

// MarkEmbedPending flips a ledger row's embed-pending flag.
func (s *SQLiteStorage) MarkEmbedPending(ctx context.Context, fileID int64, pending bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE files SET embed_pending = ?, updated_at = ? WHERE id = ?",
		pending, time.Now(), fileID)
	if err != nil {
		return fmt.Errorf("mark embed pending: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: file %d", ErrNotFound, fileID)
	}
	return nil
}

// ListChunksMissingEmbeddings returns chunks in the index that have no
// vector yet, oldest files first. Used to drain the embed-pending
// backlog.
func (s *SQLiteStorage) ListChunksMissingEmbeddings(ctx context.Context, indexID int64, limit int) ([]*ChunkRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixColumns(chunkColumns, "c")+`
		FROM chunks c
		INNER JOIN files f ON c.file_id = f.id
		LEFT JOIN embeddings e ON e.chunk_id = c.id
		WHERE f.index_id = ? AND e.id IS NULL
		ORDER BY f.indexed_at, c.start_line
		LIMIT ?`, indexID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chunks missing embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*ChunkRecord
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// prefixColumns qualifies each column in a comma list with a table
// alias.
func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// Retrieval legs

func (s *SQLiteStorage) SearchVector(ctx context.Context, indexID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.db, indexID, vector, limit, filters)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, indexID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.db, indexID, query, limit, filters)
}

// Stats

func (s *SQLiteStorage) Stats(ctx context.Context, indexID int64) (*IndexStats, error) {
	stats := &IndexStats{}

	var oldest, newest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(symbol_count), 0),
		       COALESCE(SUM(chunk_count), 0),
		       COALESCE(SUM(parse_failed), 0),
		       COALESCE(SUM(embed_pending), 0),
		       MIN(indexed_at), MAX(indexed_at)
		FROM files WHERE index_id = ?`, indexID).Scan(
		&stats.FileCount, &stats.SymbolCount, &stats.ChunkCount,
		&stats.ParseFailures, &stats.EmbedPending, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("file stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestIndexedAt = oldest.Time
	}
	if newest.Valid {
		stats.NewestIndexedAt = newest.Time
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM embeddings e
		INNER JOIN chunks c ON e.chunk_id = c.id
		INNER JOIN files f ON c.file_id = f.id
		WHERE f.index_id = ?`, indexID).Scan(&stats.EmbeddingCount)
	if err != nil {
		return nil, fmt.Errorf("embedding stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT language, COUNT(*), COALESCE(SUM(chunk_count), 0)
		FROM files WHERE index_id = ?
		GROUP BY language ORDER BY language`, indexID)
	if err != nil {
		return nil, fmt.Errorf("language stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ls LanguageStats
		if err := rows.Scan(&ls.Language, &ls.FileCount, &ls.ChunkCount); err != nil {
			return nil, err
		}
		stats.Languages = append(stats.Languages, ls)
	}
	return stats, rows.Err()
}
