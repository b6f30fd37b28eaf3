package service

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// MapImportService builds the layer hierarchy from a spreadsheet.
type MapImportService struct {
	db  *sql.DB
	bus *EventBus
	log *zap.Logger
}

// NewMapImportService creates a map import service.
func NewMapImportService(db *sql.DB, bus *EventBus, log *zap.Logger) *MapImportService {
	return &MapImportService{db: db, bus: bus, log: log}
}

// Import creates one layer per LayerSetup (the first is the zip code leaf
// level) and one node per distinct cell value of its column. Each node is
// parented to the node named in the next layer's column of the same row.
// Leaf names are zero padded and only zips with stored geography are kept;
// the rest are reported in Skipped.
func (s *MapImportService) Import(ctx context.Context, in ImportMap) (ImportResult, error) {
	columns, err := validateImport(in)
	if err != nil {
		return ImportResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportResult{}, err
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM layers`).Scan(&existing); err != nil {
		return ImportResult{}, fmt.Errorf("checking layers: %w", err)
	}
	if existing > 0 {
		return ImportResult{}, fmt.Errorf("%w: %d layers exist", ErrMapExists, existing)
	}

	zips, err := knownZips(ctx, tx)
	if err != nil {
		return ImportResult{}, err
	}

	layerIDs := make([]int, len(in.Layers))
	for i, ls := range in.Layers {
		id, err := createLayerTx(ctx, tx, ls.Name)
		if err != nil {
			return ImportResult{}, err
		}
		layerIDs[i] = id
	}

	res := ImportResult{Name: in.Name, Skipped: []string{}}
	var parents map[string]int
	for level := len(in.Layers) - 1; level >= 0; level-- {
		col := columns[level]
		parentCol := -1
		if level+1 < len(in.Layers) {
			parentCol = columns[level+1]
		}

		created := make(map[string]int)
		parentOf := make(map[string]string)
		for r, row := range in.Values {
			name := cell(row, col)
			if name == "" {
				continue
			}
			if level == 0 {
				name = NormalizeZip(name)
				if !zips[name] {
					if !slices.Contains(res.Skipped, name) {
						res.Skipped = append(res.Skipped, name)
					}
					continue
				}
			}
			parent := ""
			if parentCol >= 0 {
				parent = cell(row, parentCol)
			}
			if prev, seen := parentOf[name]; seen {
				if prev != parent {
					return ImportResult{}, fmt.Errorf("%w: row %d: %s %q has parents %q and %q",
						ErrInvalidImport, r+1, in.Layers[level].Name, name, prev, parent)
				}
				continue
			}
			parentOf[name] = parent

			var parentID *int
			if parent != "" {
				id, ok := parents[parent]
				if !ok {
					return ImportResult{}, fmt.Errorf("%w: row %d: unknown parent %q", ErrInvalidImport, r+1, parent)
				}
				parentID = &id
			}
			var id int
			err := tx.QueryRowContext(ctx, `
				INSERT INTO nodes (layer_id, name, color, parent_node_id)
				VALUES (?, ?, ?, ?)
				RETURNING id`, layerIDs[level], name, DefaultNodeColor, parentID).Scan(&id)
			if err != nil {
				return ImportResult{}, fmt.Errorf("inserting %s %q: %w", in.Layers[level].Name, name, err)
			}
			created[name] = id
			res.Nodes++
		}
		parents = created
	}

	// Rows with a blank parent cell fall under each level's default node.
	for _, id := range layerIDs[1:] {
		if err := adoptOrphansTx(ctx, tx, id); err != nil {
			return ImportResult{}, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE nodes SET geom = g.geom
		FROM geography_zip_codes g
		WHERE nodes.name = g.zip_code AND nodes.layer_id = ?`, layerIDs[0]); err != nil {
		return ImportResult{}, fmt.Errorf("attaching zip geometry: %w", err)
	}

	for _, id := range layerIDs {
		l, err := getLayer(ctx, tx, id)
		if err != nil {
			return ImportResult{}, err
		}
		res.Layers = append(res.Layers, l)
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("committing import: %w", err)
	}

	s.log.Info("map imported",
		zap.String("name", in.Name),
		zap.Int("layers", len(res.Layers)),
		zap.Int("nodes", res.Nodes),
		zap.Int("skipped", len(res.Skipped)))
	for _, l := range res.Layers {
		s.bus.Publish(Event{Resource: "layers", Action: "created", ID: strconv.Itoa(l.ID)})
	}
	return res, nil
}

// validateImport checks the configuration against the header row and
// returns the column index of each layer.
func validateImport(in ImportMap) ([]int, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: map name is required", ErrInvalidImport)
	}
	if len(in.Layers) == 0 {
		return nil, fmt.Errorf("%w: at least one layer is required", ErrInvalidImport)
	}

	index := make(map[string]int, len(in.Headers))
	for i, h := range in.Headers {
		index[h] = i
	}

	columns := make([]int, len(in.Layers))
	names := make(map[string]bool, len(in.Layers))
	for i, ls := range in.Layers {
		if names[ls.Name] {
			return nil, fmt.Errorf("%w: duplicate layer name %q", ErrInvalidImport, ls.Name)
		}
		names[ls.Name] = true
		col, ok := index[ls.Header]
		if !ok {
			return nil, fmt.Errorf("%w: layer %q uses unknown header %q", ErrInvalidImport, ls.Name, ls.Header)
		}
		columns[i] = col
	}
	for _, df := range in.DataFields {
		if _, ok := index[df.Header]; !ok {
			return nil, fmt.Errorf("%w: data field %q uses unknown header %q", ErrInvalidImport, df.Name, df.Header)
		}
		if df.Type != "text" && df.Type != "number" {
			return nil, fmt.Errorf("%w: data field %q has type %q", ErrInvalidImport, df.Name, df.Type)
		}
	}
	for r, row := range in.Values {
		if len(row) > len(in.Headers) {
			return nil, fmt.Errorf("%w: row %d has %d cells for %d headers", ErrInvalidImport, r+1, len(row), len(in.Headers))
		}
	}
	return columns, nil
}

// cell renders a spreadsheet cell as a node name. Missing cells are blank.
func cell(row []any, col int) string {
	if col >= len(row) {
		return ""
	}
	switch v := row[col].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func knownZips(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT zip_code FROM geography_zip_codes`)
	if err != nil {
		return nil, fmt.Errorf("loading zip codes: %w", err)
	}
	defer rows.Close()

	zips := make(map[string]bool)
	for rows.Next() {
		var z string
		if err := rows.Scan(&z); err != nil {
			return nil, err
		}
		zips[z] = true
	}
	return zips, rows.Err()
}
