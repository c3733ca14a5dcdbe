package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/polypheny/Polypheny-DB-sub058/internal/app"
	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/materialize"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the lattice endpoints of one App.
type Handler struct {
	app    *app.App
	logger *slog.Logger
}

// NewHandler creates a Handler. A nil logger discards.
func NewHandler(a *app.App, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{app: a, logger: logger}
}

type latticeSummary struct {
	Name    string `json:"name"`
	Digest  string `json:"digest"`
	Columns int    `json:"columns"`
	Tiles   int    `json:"tiles"`
}

type columnJSON struct {
	Ordinal int    `json:"ordinal"`
	Table   string `json:"table"`
	Name    string `json:"name"`
	Alias   string `json:"alias"`
}

type tileJSON struct {
	Dimensions []string `json:"dimensions"`
	Measures   []string `json:"measures"`
}

type latticeDetail struct {
	Name     string       `json:"name"`
	Digest   string       `json:"digest"`
	Columns  []columnJSON `json:"columns"`
	Measures []string     `json:"measures"`
	Tiles    []tileJSON   `json:"tiles"`
}

type cardinalityJSON struct {
	Columns     []string `json:"columns"`
	Cardinality float64  `json:"cardinality"`
}

type cardinalityResponse struct {
	FactRows float64           `json:"fact_rows"`
	Results  []cardinalityJSON `json:"results"`
}

type tileRequestJSON struct {
	Dimensions []string `json:"dimensions"`
	Measures   []string `json:"measures"`
	Schema     string   `json:"schema"`
	Name       string   `json:"name"`
	Create     bool     `json:"create"`
	Exact      bool     `json:"exact"`
}

type tileResultJSON struct {
	tileJSON
	Match           string `json:"match"`
	Materialization string `json:"materialization"`
	Table           string `json:"table,omitempty"`
}

type materializationJSON struct {
	Key       string    `json:"key"`
	SQL       string    `json:"sql"`
	Schema    string    `json:"schema"`
	Table     string    `json:"table,omitempty"`
	Lattice   string    `json:"lattice,omitempty"`
	Tile      *tileJSON `json:"tile,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listLattices(w http.ResponseWriter, _ *http.Request) {
	out := make([]latticeSummary, 0)
	for _, name := range h.app.LatticeNames() {
		l, err := h.app.Lattice(name)
		if err != nil {
			// removed between the two calls
			continue
		}
		out = append(out, latticeSummary{
			Name:    name,
			Digest:  l.Digest(),
			Columns: len(l.Columns()),
			Tiles:   len(l.Tiles()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"lattices": out})
}

func (h *Handler) getLattice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	l, err := h.app.Lattice(name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	d := latticeDetail{Name: name, Digest: l.Digest(), Columns: []columnJSON{}, Measures: []string{}, Tiles: []tileJSON{}}
	for _, c := range l.Columns() {
		d.Columns = append(d.Columns, columnJSON{Ordinal: c.Ordinal, Table: c.Table, Name: c.Name, Alias: c.Alias})
	}
	for _, m := range l.DefaultMeasures() {
		d.Measures = append(d.Measures, m.String())
	}
	for _, t := range l.Tiles() {
		d.Tiles = append(d.Tiles, tileOf(lattice.NewTileKey(l, t.BitSet(), t.Measures)))
	}
	writeJSON(w, http.StatusOK, d)
}

// getCardinality estimates the columns named by the comma-separated
// "columns" query parameter together, or every column on its own when it
// is absent.
func (h *Handler) getCardinality(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l, err := h.app.Lattice(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var groups [][]lattice.Column
	if raw := r.URL.Query().Get("columns"); raw != "" {
		cols, err := app.ResolveColumns(l, strings.Split(raw, ","))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		groups = append(groups, cols)
	} else {
		for _, c := range l.Columns() {
			groups = append(groups, []lattice.Column{c})
		}
	}

	factRows, err := l.FactRowCount(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := cardinalityResponse{FactRows: factRows, Results: make([]cardinalityJSON, 0, len(groups))}
	for _, g := range groups {
		n, err := l.Cardinality(ctx, g)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		names := make([]string, len(g))
		for i, c := range g {
			names[i] = c.String()
		}
		resp.Results = append(resp.Results, cardinalityJSON{Columns: names, Cardinality: n})
	}
	writeJSON(w, http.StatusOK, resp)
}

// defineTiles builds the lattice's declared tiles and, when the body names
// dimensions or measures, looks up or creates that tile.
func (h *Handler) defineTiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l, err := h.app.Lattice(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req tileRequestJSON
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, domain.ErrValidation("malformed request body: %v", err))
		return
	}

	svc := h.app.Materialize
	sch := h.app.MaterializationSchema(req.Schema)
	declared, err := svc.DefineLatticeTiles(ctx, l, sch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := struct {
		Declared []tileResultJSON `json:"declared"`
		Request  *tileResultJSON  `json:"request,omitempty"`
	}{Declared: make([]tileResultJSON, 0, len(declared))}
	for _, res := range declared {
		resp.Declared = append(resp.Declared, tileResultOf(res))
	}

	if len(req.Dimensions) > 0 || len(req.Measures) > 0 {
		dims, err := app.ResolveColumns(l, req.Dimensions)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		measures, err := app.ResolveMeasures(l, req.Measures)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		res, err := svc.DefineTile(ctx, materialize.TileRequest{
			Lattice:            l,
			Dimensions:         lattice.ColumnsToBitSet(dims),
			Measures:           measures,
			Schema:             sch,
			Create:             req.Create,
			Exact:              req.Exact,
			SuggestedTableName: req.Name,
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		out := tileResultOf(res)
		resp.Request = &out
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listMaterializations(w http.ResponseWriter, _ *http.Request) {
	out := make([]materializationJSON, 0)
	for _, m := range h.app.Materialize.Registry().All() {
		mj := materializationJSON{
			Key:       m.Key().String(),
			SQL:       m.SQL(),
			Schema:    strings.Join(m.ViewSchemaPath(), "."),
			CreatedAt: m.CreatedAt(),
		}
		if e, ok := m.BackingTable(); ok {
			mj.Table = e.Table.String()
		}
		if tile, ok := m.Tile(); ok {
			t := tileOf(tile)
			mj.Tile = &t
			mj.Lattice = tile.Lattice().Digest()
		}
		out = append(out, mj)
	}
	writeJSON(w, http.StatusOK, map[string]any{"materializations": out})
}

func tileOf(k lattice.TileKey) tileJSON {
	t := tileJSON{Dimensions: []string{}, Measures: []string{}}
	for _, o := range lattice.Ordinals(k.Dimensions()) {
		t.Dimensions = append(t.Dimensions, k.Lattice().Column(o).String())
	}
	for _, m := range k.Measures() {
		t.Measures = append(t.Measures, m.String())
	}
	return t
}

func tileResultOf(r *materialize.TileResult) tileResultJSON {
	out := tileResultJSON{tileJSON: tileOf(r.Tile), Match: string(r.Match)}
	if r.Materialization != nil {
		out.Materialization = r.Materialization.Key().String()
	}
	if r.Table != nil {
		out.Table = r.Table.Table.String()
	}
	return out
}
