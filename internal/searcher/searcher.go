// Package searcher serves hybrid retrieval: a vector leg and a
// lexical leg run concurrently over the filtered chunk set, and their
// rankings are fused with Reciprocal Rank Fusion. Filters are
// validated up front and fail fast; a bad filter is a caller mistake,
// not an empty result.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/VioletCranberry/coco-search/internal/embedder"
	"github.com/VioletCranberry/coco-search/internal/expander"
	"github.com/VioletCranberry/coco-search/internal/lang"
	"github.com/VioletCranberry/coco-search/internal/storage"
	"github.com/VioletCranberry/coco-search/pkg/types"
)

// Mode selects which retrieval legs run.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeVector Mode = "vector"
	ModeText   Mode = "text"
)

const (
	// DefaultRRFConstant is the C in 1/(rank + C).
	DefaultRRFConstant = 60.0

	// DefaultWideningFactor is how many times the requested limit each
	// leg fetches before fusion, so fusion has enough overlap to work
	// with.
	DefaultWideningFactor = 4

	// DefaultLimit and MaxLimit bound the result count.
	DefaultLimit = 10
	MaxLimit     = 100

	// DefaultTimeout bounds one search request.
	DefaultTimeout = 10 * time.Second
)

var (
	// ErrInvalidFilter is returned for filters that can never match:
	// unknown languages, unknown symbol kinds, malformed globs.
	ErrInvalidFilter = errors.New("invalid search filter")

	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Request is one search invocation.
type Request struct {
	IndexName string
	Query     string
	Limit     int
	Mode      Mode
	Filters   *storage.SearchFilters

	// RRFConstant overrides DefaultRRFConstant when positive.
	RRFConstant float64

	// WideningFactor overrides DefaultWideningFactor when positive.
	WideningFactor int

	// ExpandContext widens hits to their enclosing symbols.
	ExpandContext bool

	Timeout time.Duration
}

// Response carries ranked results and leg metadata.
type Response struct {
	Results      []types.SearchResult
	TotalResults int
	Mode         Mode
	VectorHits   int
	TextHits     int
	Duration     time.Duration
}

// Searcher executes search requests.
type Searcher struct {
	store    storage.Storage
	embedder embedder.Embedder
	registry *lang.Registry
	expander *expander.Expander
	log      zerolog.Logger
}

// New creates a Searcher. The expander may be nil, in which case
// ExpandContext requests are served unexpanded.
func New(store storage.Storage, emb embedder.Embedder, registry *lang.Registry, exp *expander.Expander, log zerolog.Logger) *Searcher {
	return &Searcher{
		store:    store,
		embedder: emb,
		registry: registry,
		expander: exp,
		log:      log.With().Str("component", "searcher").Logger(),
	}
}

// Search runs one request. Filters are applied inside both legs, so
// filtered-out chunks never consume rank positions.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	index, err := s.store.GetIndex(ctx, req.IndexName)
	if err != nil {
		return nil, err
	}
	if (req.Mode == ModeHybrid || req.Mode == ModeVector) &&
		s.embedder.Dimension() != index.Dimension {
		return nil, fmt.Errorf("%w: embedder produces %d, index stores %d",
			storage.ErrDimensionMismatch, s.embedder.Dimension(), index.Dimension)
	}

	fetch := req.Limit * req.WideningFactor
	var vectorResults []storage.VectorResult
	var textResults []storage.TextResult

	switch req.Mode {
	case ModeHybrid:
		vectorResults, textResults, err = s.runBothLegs(ctx, index, req, fetch)
	case ModeVector:
		vectorResults, err = s.runVectorLeg(ctx, index, req, fetch)
	case ModeText:
		textResults, err = s.runTextLeg(ctx, index, req, fetch)
	}
	if err != nil {
		return nil, err
	}

	fused := fuse(vectorResults, textResults, req.RRFConstant)

	// Single-leg modes report the leg's native score instead of the
	// RRF transform. Fusing a single leg preserves its order, so the
	// positions line up.
	switch req.Mode {
	case ModeVector:
		for i := range fused {
			fused[i].score = vectorResults[i].SimilarityScore
		}
	case ModeText:
		for i := range fused {
			fused[i].score = textResults[i].BM25Score
		}
	}

	results, err := s.fetchResults(ctx, index, fused, req.Limit, req.ExpandContext)
	if err != nil {
		return nil, err
	}

	return &Response{
		Results:      results,
		TotalResults: len(results),
		Mode:         req.Mode,
		VectorHits:   len(vectorResults),
		TextHits:     len(textResults),
		Duration:     time.Since(start),
	}, nil
}

// validateRequest normalizes defaults and fails fast on filters that
// cannot match anything.
func (s *Searcher) validateRequest(req *Request) error {
	if req.IndexName == "" {
		return errors.New("index name is required")
	}
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	switch req.Mode {
	case ModeHybrid, ModeVector, ModeText:
	default:
		return fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if req.RRFConstant <= 0 {
		req.RRFConstant = DefaultRRFConstant
	}
	if req.WideningFactor <= 0 {
		req.WideningFactor = DefaultWideningFactor
	}

	f := req.Filters
	if f == nil {
		return nil
	}
	for _, language := range f.Languages {
		if _, err := s.registry.Lookup(language); err != nil {
			return fmt.Errorf("%w: unknown language %q", ErrInvalidFilter, language)
		}
	}
	for _, kind := range f.SymbolKinds {
		if !types.ValidKind(types.SymbolKind(kind)) {
			return fmt.Errorf("%w: unknown symbol kind %q", ErrInvalidFilter, kind)
		}
	}
	if f.PathGlob != "" && !doublestar.ValidatePattern(f.PathGlob) {
		return fmt.Errorf("%w: malformed path glob %q", ErrInvalidFilter, f.PathGlob)
	}
	if f.SymbolGlob != "" && !doublestar.ValidatePattern(f.SymbolGlob) {
		return fmt.Errorf("%w: malformed symbol glob %q", ErrInvalidFilter, f.SymbolGlob)
	}
	return nil
}

type legResult struct {
	vector []storage.VectorResult
	text   []storage.TextResult
	err    error
}

// runBothLegs executes both retrieval legs concurrently. One leg may
// fail as long as the other succeeds; both failing fails the search.
func (s *Searcher) runBothLegs(ctx context.Context, index *storage.Index, req Request, fetch int) ([]storage.VectorResult, []storage.TextResult, error) {
	vectorChan := make(chan legResult, 1)
	textChan := make(chan legResult, 1)

	go func() {
		vector, err := s.runVectorLeg(ctx, index, req, fetch)
		vectorChan <- legResult{vector: vector, err: err}
	}()
	go func() {
		text, err := s.runTextLeg(ctx, index, req, fetch)
		textChan <- legResult{text: text, err: err}
	}()

	var vectorRes, textRes legResult
	for i := 0; i < 2; i++ {
		select {
		case vectorRes = <-vectorChan:
		case textRes = <-textChan:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	if vectorRes.err != nil && textRes.err != nil {
		return nil, nil, fmt.Errorf("both legs failed: vector=%v, text=%v",
			vectorRes.err, textRes.err)
	}
	if vectorRes.err != nil {
		s.log.Warn().Err(vectorRes.err).Msg("vector leg failed, using text leg only")
	}
	if textRes.err != nil {
		s.log.Warn().Err(textRes.err).Msg("text leg failed, using vector leg only")
	}
	return vectorRes.vector, textRes.text, nil
}

func (s *Searcher) runVectorLeg(ctx context.Context, index *storage.Index, req Request, fetch int) ([]storage.VectorResult, error) {
	embeddings, err := s.embedder.EmbedBatch(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.store.SearchVector(ctx, index.ID, embeddings[0].Vector, fetch, req.Filters)
}

func (s *Searcher) runTextLeg(ctx context.Context, index *storage.Index, req Request, fetch int) ([]storage.TextResult, error) {
	return s.store.SearchText(ctx, index.ID, req.Query, fetch, req.Filters)
}

// fused is one chunk's combined ranking state.
type fusedResult struct {
	chunkID    int64
	score      float64
	vectorRank int
	textRank   int
	order      int
}

// fuse combines both legs with Reciprocal Rank Fusion:
// score(d) = sum over legs of 1/(rank(d) + C), ranks 1-based. Ties
// break toward the better vector rank, then first appearance.
func fuse(vectorResults []storage.VectorResult, textResults []storage.TextResult, c float64) []fusedResult {
	if c <= 0 {
		c = DefaultRRFConstant
	}

	byChunk := make(map[int64]*fusedResult)
	var ordered []*fusedResult
	add := func(chunkID int64) *fusedResult {
		if fr, ok := byChunk[chunkID]; ok {
			return fr
		}
		fr := &fusedResult{chunkID: chunkID, order: len(ordered)}
		byChunk[chunkID] = fr
		ordered = append(ordered, fr)
		return fr
	}

	for i, vr := range vectorResults {
		fr := add(vr.ChunkID)
		fr.vectorRank = i + 1
		fr.score += 1.0 / (float64(i+1) + c)
	}
	for i, tr := range textResults {
		fr := add(tr.ChunkID)
		fr.textRank = i + 1
		fr.score += 1.0 / (float64(i+1) + c)
	}

	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.score != b.score {
			return a.score > b.score
		}
		av, bv := a.vectorRank, b.vectorRank
		if av == 0 {
			av = int(^uint(0) >> 1)
		}
		if bv == 0 {
			bv = int(^uint(0) >> 1)
		}
		if av != bv {
			return av < bv
		}
		return a.order < b.order
	})

	results := make([]fusedResult, len(ordered))
	for i, fr := range ordered {
		results[i] = *fr
	}
	return results
}

// fetchResults loads chunk and file rows for the top fused hits and
// optionally expands each to its enclosing symbol.
func (s *Searcher) fetchResults(ctx context.Context, index *storage.Index, fused []fusedResult, limit int, expand bool) ([]types.SearchResult, error) {
	if limit > len(fused) {
		limit = len(fused)
	}
	fused = fused[:limit]

	chunkIDs := make([]int64, len(fused))
	for i, fr := range fused {
		chunkIDs[i] = fr.chunkID
	}
	chunks, err := s.store.GetChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	files := make(map[int64]*storage.FileRecord)
	results := make([]types.SearchResult, 0, len(fused))
	for _, fr := range fused {
		chunk, ok := chunks[fr.chunkID]
		if !ok {
			continue
		}
		file, ok := files[chunk.FileID]
		if !ok {
			file, err = s.store.GetFileByID(ctx, chunk.FileID)
			if err != nil {
				s.log.Debug().Err(err).Int64("chunk", fr.chunkID).Msg("skipping orphaned chunk")
				continue
			}
			files[chunk.FileID] = file
		}

		result := types.SearchResult{
			File:            file.Path,
			Span:            chunk.Span(),
			Score:           fr.score,
			VectorRank:      fr.vectorRank,
			TextRank:        fr.textRank,
			SymbolKind:      types.SymbolKind(chunk.SymbolKind),
			SymbolName:      chunk.SymbolName,
			SymbolSignature: chunk.SymbolSignature,
			HierarchyPath:   chunk.HierarchyPath,
			Language:        chunk.Language,
			Text:            chunk.Content,
		}

		if expand && s.expander != nil {
			expansion := s.expander.Expand(ctx, index.RootPath, file, chunk)
			result.Text = expansion.Text
			result.Span = expansion.Span
			result.Expanded = expansion.Expanded
		}
		results = append(results, result)
	}
	return results, nil
}
