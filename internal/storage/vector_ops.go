package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// searchVector ranks chunks by cosine similarity to the query vector.
// Filters are applied in SQL so excluded chunks never hold rank
// positions; similarity is computed in Go, which works identically for
// both SQLite drivers.
func searchVector(ctx context.Context, db *sql.DB, indexID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	query := `
		SELECT c.id, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN files f ON c.file_id = f.id
		WHERE f.index_id = ?
	`
	args := []interface{}{indexID}
	query, args = applyFilters(query, args, filters)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []candidate
	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, err
		}
		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			return nil, fmt.Errorf("%w: stored %d, query %d",
				ErrDimensionMismatch, len(vector), len(queryVector))
		}
		candidates = append(candidates, candidate{
			chunkID: chunkID,
			score:   cosineSimilarity(queryVector, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:         candidates[i].chunkID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results, nil
}

// searchText ranks chunks by BM25 over the FTS index.
func searchText(ctx context.Context, db *sql.DB, indexID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, fmt.Errorf("empty search query")
	}

	sqlQuery := `
		SELECT c.id, bm25(chunks_fts) AS score
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.rowid = c.id
		INNER JOIN files f ON c.file_id = f.id
		WHERE chunks_fts MATCH ?
		AND f.index_id = ?
	`
	args := []interface{}{sanitized, indexID}
	sqlQuery, args = applyFilters(sqlQuery, args, filters)

	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []TextResult
	for rows.Next() {
		var result TextResult
		if err := rows.Scan(&result.ChunkID, &result.BM25Score); err != nil {
			return nil, err
		}
		// BM25 is negative, lower is better; fold into (0, 1].
		result.BM25Score = 1.0 / (1.0 + math.Abs(result.BM25Score)/50.0)
		results = append(results, result)
	}
	return results, rows.Err()
}

// applyFilters appends WHERE conditions shared by both legs.
func applyFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if len(filters.Languages) > 0 {
		query += " AND c.language IN (" + placeholders(len(filters.Languages)) + ")"
		for _, language := range filters.Languages {
			args = append(args, language)
		}
	}
	if len(filters.SymbolKinds) > 0 {
		query += " AND c.symbol_kind IN (" + placeholders(len(filters.SymbolKinds)) + ")"
		for _, kind := range filters.SymbolKinds {
			args = append(args, kind)
		}
	}
	if filters.PathGlob != "" {
		query += " AND f.path GLOB ?"
		args = append(args, filters.PathGlob)
	}
	if filters.SymbolGlob != "" {
		query += " AND c.symbol_name GLOB ?"
		args = append(args, filters.SymbolGlob)
	}
	return query, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type candidate struct {
	chunkID int64
	score   float64
}

// serializeVector converts a float32 slice to a little-endian blob.
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a blob back to a float32 slice.
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// cosineSimilarity computes similarity between two equal-length
// vectors. Zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sanitizeFTSQuery rewrites a user query as individually quoted
// bareword terms so punctuation and FTS5 operators (AND, NOT, column
// filters, NEAR) are matched as plain text instead of parsed as query
// syntax.
func sanitizeFTSQuery(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for i, term := range terms {
		terms[i] = `"` + term + `"`
	}
	return strings.Join(terms, " ")
}

// SerializeVector is the exported form used by the indexer and tests.
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is the exported inverse of SerializeVector.
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is exported for the searcher and tests.
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
