package materialize

import (
	"slices"
	"sync"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
)

// Registry indexes materializations by key, by query signature, by tile, and
// by tile dimensionality. One mutex guards all four indices, so a
// registration is visible in every index or in none.
type Registry struct {
	mu                    sync.RWMutex
	keyMap                map[Key]*Materialization
	keyBySQL              map[QueryKey]Key
	keyByTile             map[lattice.TileIndex]Key
	tilesByDimensionality map[lattice.TileIndex][]lattice.TileKey

	// registration order, for deterministic enumeration
	order     []Key
	tileOrder []lattice.TileKey
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		keyMap:                make(map[Key]*Materialization),
		keyBySQL:              make(map[QueryKey]Key),
		keyByTile:             make(map[lattice.TileIndex]Key),
		tilesByDimensionality: make(map[lattice.TileIndex][]lattice.TileKey),
	}
}

// GetOrRegister returns the materialization registered for q. If there is
// none, build is called with a fresh key and its result is registered under
// q, and under tile when tile is not nil. The lookup and registration are one
// critical section; build must not call back into the registry.
func (r *Registry) GetOrRegister(q QueryKey, tile *lattice.TileKey, build func(Key) (*Materialization, error)) (*Materialization, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.keyBySQL[q]; ok {
		return r.keyMap[key], false, nil
	}
	m, err := build(newKey())
	if err != nil {
		return nil, false, err
	}
	r.keyMap[m.key] = m
	r.keyBySQL[q] = m.key
	r.order = append(r.order, m.key)
	if tile != nil {
		r.putTileLocked(*tile, m.key)
	}
	return m, true, nil
}

// Get returns the materialization with key.
func (r *Registry) Get(key Key) (*Materialization, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.keyMap[key]
	return m, ok
}

// ByQuery returns the materialization registered for q.
func (r *Registry) ByQuery(q QueryKey) (*Materialization, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keyBySQL[q]
	if !ok {
		return nil, false
	}
	return r.keyMap[key], true
}

// ByTile returns the materialization registered for tile.
func (r *Registry) ByTile(tile lattice.TileKey) (*Materialization, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keyByTile[tile.Index()]
	if !ok {
		return nil, false
	}
	return r.keyMap[key], true
}

// TilesByDimensionality returns every registered tile with the lattice and
// dimensions of dim, in registration order.
func (r *Registry) TilesByDimensionality(dim lattice.TileKey) []lattice.TileKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tilesByDimensionality[dim.Dimensionality().Index()])
}

// Tiles returns the registered tiles of l in registration order.
func (r *Registry) Tiles(l *lattice.Lattice) []lattice.TileKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []lattice.TileKey
	for _, t := range r.tileOrder {
		if t.Lattice() == l {
			out = append(out, t)
		}
	}
	return out
}

// All returns every materialization in registration order.
func (r *Registry) All() []*Materialization {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Materialization, len(r.order))
	for i, k := range r.order {
		out[i] = r.keyMap[k]
	}
	return out
}

// Len returns the number of materializations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keyMap)
}

// ReplaceTiles indexes tile under key and drops the tiles in obsolete, in
// one critical section. Obsolete tiles keep their materializations; only
// their tile entries go.
func (r *Registry) ReplaceTiles(obsolete []lattice.TileKey, tile lattice.TileKey, key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keyMap[key]; !ok {
		return domain.ErrNotFound("materialization %s not found", key)
	}
	for _, o := range obsolete {
		if !o.Equal(tile) {
			r.removeTileLocked(o)
		}
	}
	r.putTileLocked(tile, key)
	return nil
}

func (r *Registry) putTileLocked(tile lattice.TileKey, key Key) {
	idx := tile.Index()
	if _, ok := r.keyByTile[idx]; !ok {
		dim := tile.Dimensionality().Index()
		r.tilesByDimensionality[dim] = append(r.tilesByDimensionality[dim], tile)
		r.tileOrder = append(r.tileOrder, tile)
	}
	r.keyByTile[idx] = key
}

func (r *Registry) removeTileLocked(tile lattice.TileKey) {
	idx := tile.Index()
	if _, ok := r.keyByTile[idx]; !ok {
		return
	}
	delete(r.keyByTile, idx)
	dim := tile.Dimensionality().Index()
	match := func(t lattice.TileKey) bool { return t.Equal(tile) }
	r.tilesByDimensionality[dim] = slices.DeleteFunc(r.tilesByDimensionality[dim], match)
	if len(r.tilesByDimensionality[dim]) == 0 {
		delete(r.tilesByDimensionality, dim)
	}
	r.tileOrder = slices.DeleteFunc(r.tileOrder, match)
}
