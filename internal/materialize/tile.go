package materialize

import (
	"context"
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

// Match tells how DefineTile found its tile.
type Match string

const (
	// MatchExact is a tile with the requested dimensions and measures.
	MatchExact Match = "exact"
	// MatchMeasures is a tile with the requested dimensions whose measures,
	// or dimensions, cover the requested measures.
	MatchMeasures Match = "measures"
	// MatchRollup is a finer tile the request can be rolled up from.
	MatchRollup Match = "rollup"
	// MatchCreated is a tile defined by the request.
	MatchCreated Match = "created"
)

// TileRequest asks for a tile of a lattice.
type TileRequest struct {
	Lattice    *lattice.Lattice
	Dimensions *bitset.BitSet
	Measures   []lattice.Measure
	// Schema receives backing tables of created tiles.
	Schema *schema.Schema
	// Create defines a tile when no existing one can answer.
	Create bool
	// Exact disallows answering from a finer tile.
	Exact              bool
	SuggestedTableName string
}

// TileResult is the tile that answers a TileRequest.
type TileResult struct {
	Tile            lattice.TileKey
	Materialization *Materialization
	// Table is nil while a created tile has not been built.
	Table *schema.TableEntry
	Match Match
}

// DefineTile finds a built tile that can answer the request, trying in turn
// an exact match, a tile of the same dimensions with sufficient measures,
// and unless Exact is set a finer tile to roll up from. Failing that, with
// Create set, it defines a tile of the requested dimensions carrying the
// requested measures together with those of every other tile of those
// dimensions, and retires the narrower tiles.
func (s *Service) DefineTile(ctx context.Context, req TileRequest) (*TileResult, error) {
	if req.Lattice == nil {
		return nil, domain.ErrValidation("lattice is required")
	}
	if req.Create && req.Schema == nil {
		return nil, domain.ErrValidation("schema is required to create a tile")
	}
	if err := req.Lattice.CheckTile(req.Dimensions, req.Measures); err != nil {
		return nil, err
	}
	tile := lattice.NewTileKey(req.Lattice, req.Dimensions, req.Measures)

	if m, ok := s.registry.ByTile(tile); ok {
		if e, ok := m.BackingTable(); ok {
			return s.found(tile, m, e, MatchExact), nil
		}
	}

	sameDims := s.registry.TilesByDimensionality(tile)
	for _, t := range sameDims {
		if !satisfiable(req.Measures, t, false) {
			continue
		}
		if m, ok := s.registry.ByTile(t); ok {
			if e, ok := m.BackingTable(); ok {
				return s.found(t, m, e, MatchMeasures), nil
			}
		}
	}

	if !req.Exact {
		if res := s.rollup(tile); res != nil {
			return res, nil
		}
	}

	if !req.Create {
		return nil, domain.ErrNotFound("no materialization answers tile %s", tile)
	}

	newTile := tile
	if len(sameDims) > 0 {
		var measures []lattice.Measure
		for _, t := range sameDims {
			measures = appendMissing(measures, t.Measures()...)
		}
		measures = appendMissing(measures, req.Measures...)
		newTile = lattice.NewTileKey(req.Lattice, req.Dimensions, measures)
	}

	sql := req.Lattice.SQL(newTile.Dimensions(), true, newTile.Measures())
	m, err := s.define(ctx, DefineRequest{
		Schema:             req.Schema,
		SQL:                sql,
		ViewSchemaPath:     req.Schema.Path(),
		SuggestedTableName: req.SuggestedTableName,
		Create:             true,
	}, &newTile)
	if err != nil {
		return nil, err
	}
	if err := s.registry.ReplaceTiles(sameDims, newTile, m.Key()); err != nil {
		return nil, err
	}
	if len(sameDims) > 0 {
		s.logger.Debug("tiles widened", "tile", newTile.String(), "retired", len(sameDims))
	}
	e, _ := m.BackingTable()
	return s.found(newTile, m, e, MatchCreated), nil
}

func (s *Service) found(tile lattice.TileKey, m *Materialization, e *schema.TableEntry, match Match) *TileResult {
	s.metrics.tileLookup(match)
	return &TileResult{Tile: tile, Materialization: m, Table: e, Match: match}
}

// rollup returns the built tile of tile's lattice with the fewest dimensions
// that strictly contains tile's dimensions and can supply its measures.
// Ties go to the earliest registered.
func (s *Service) rollup(tile lattice.TileKey) *TileResult {
	var best *TileResult
	bestDims := 0
	want := tile.Dimensions()
	for _, t := range s.registry.Tiles(tile.Lattice()) {
		dims := t.Dimensions()
		if !lattice.IsSuperset(dims, want) || lattice.BitSetEqual(dims, want) {
			continue
		}
		if !satisfiable(tile.Measures(), t, true) {
			continue
		}
		m, ok := s.registry.ByTile(t)
		if !ok {
			continue
		}
		e, ok := m.BackingTable()
		if !ok {
			continue
		}
		if n := int(dims.Count()); best == nil || n < bestDims {
			best = &TileResult{Tile: t, Materialization: m, Table: e, Match: MatchRollup}
			bestDims = n
		}
	}
	if best != nil {
		s.metrics.tileLookup(MatchRollup)
	}
	return best
}

// satisfiable reports whether t can supply every measure: either t carries
// the measure (and, when rolling up, the measure can be re-aggregated) or
// the measure's arguments are all dimensions of t.
func satisfiable(measures []lattice.Measure, t lattice.TileKey, rollup bool) bool {
	have := t.Measures()
	dims := t.Dimensions()
	for _, m := range measures {
		if lattice.ContainsMeasure(have, m) {
			if _, ok := m.Rollup(); ok || !rollup {
				continue
			}
		}
		if len(m.Args) > 0 && lattice.IsSuperset(dims, m.ArgBitSet()) {
			continue
		}
		return false
	}
	return true
}

func appendMissing(list []lattice.Measure, ms ...lattice.Measure) []lattice.Measure {
	for _, m := range ms {
		if !lattice.ContainsMeasure(list, m) {
			list = append(list, m)
		}
	}
	return list
}

// DefineLatticeTiles defines, exactly and creating as needed, every tile the
// lattice declares. Backing tables go in sch.
func (s *Service) DefineLatticeTiles(ctx context.Context, l *lattice.Lattice, sch *schema.Schema) ([]*TileResult, error) {
	tiles := l.Tiles()
	results := make([]*TileResult, 0, len(tiles))
	for _, t := range tiles {
		res, err := s.DefineTile(ctx, TileRequest{
			Lattice:    l,
			Dimensions: t.BitSet(),
			Measures:   slices.Clone(t.Measures),
			Schema:     sch,
			Create:     true,
			Exact:      true,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func tileString(t *lattice.TileKey) string {
	if t == nil {
		return ""
	}
	return t.String()
}
