package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// LayerService manages the levels of the territory hierarchy.
type LayerService struct {
	db  *sql.DB
	bus *EventBus
	log *zap.Logger
}

// NewLayerService creates a new layer service.
func NewLayerService(db *sql.DB, bus *EventBus, log *zap.Logger) *LayerService {
	return &LayerService{db: db, bus: bus, log: log}
}

// tileURL is the relative vector tile template of a layer.
func tileURL(id int) string {
	return fmt.Sprintf("/tiles/%d/{z}/{x}/{y}.pbf", id)
}

const layerSelect = `
	SELECT l.id, l.name, l.ord, COUNT(n.id)
	FROM layers l
	LEFT JOIN nodes n ON n.layer_id = l.id`

// List returns all layers, leaf level first.
func (s *LayerService) List(ctx context.Context) ([]Layer, error) {
	rows, err := s.db.QueryContext(ctx, layerSelect+`
	GROUP BY l.id, l.name, l.ord
	ORDER BY l.ord`)
	if err != nil {
		return nil, fmt.Errorf("listing layers: %w", err)
	}
	defer rows.Close()

	layers := []Layer{}
	for rows.Next() {
		var l Layer
		if err := rows.Scan(&l.ID, &l.Name, &l.Order, &l.NodeCount); err != nil {
			return nil, fmt.Errorf("scanning layer: %w", err)
		}
		l.TileURL = tileURL(l.ID)
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

// Get returns a layer by ID.
func (s *LayerService) Get(ctx context.Context, id int) (Layer, error) {
	return getLayer(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getLayer(ctx context.Context, q querier, id int) (Layer, error) {
	var l Layer
	err := q.QueryRowContext(ctx, layerSelect+`
	WHERE l.id = ?
	GROUP BY l.id, l.name, l.ord`, id).Scan(&l.ID, &l.Name, &l.Order, &l.NodeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Layer{}, fmt.Errorf("%w: %d", ErrLayerNotFound, id)
	}
	if err != nil {
		return Layer{}, fmt.Errorf("loading layer %d: %w", id, err)
	}
	l.TileURL = tileURL(l.ID)
	return l, nil
}

// Create adds a layer one level above the current top layer. The new layer
// gets a default node that adopts every orphan of the layer below.
func (s *LayerService) Create(ctx context.Context, in CreateLayer) (Layer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Layer{}, err
	}
	defer tx.Rollback()

	id, err := createLayerTx(ctx, tx, in.Name)
	if err != nil {
		return Layer{}, err
	}
	if err := adoptOrphansTx(ctx, tx, id); err != nil {
		return Layer{}, err
	}
	layer, err := getLayer(ctx, tx, id)
	if err != nil {
		return Layer{}, err
	}
	if err := tx.Commit(); err != nil {
		return Layer{}, fmt.Errorf("committing layer: %w", err)
	}

	s.log.Info("layer created", zap.Int("id", layer.ID), zap.String("name", layer.Name), zap.Int("order", layer.Order))
	s.bus.Publish(Event{Resource: "layers", Action: "created", ID: strconv.Itoa(layer.ID)})
	return layer, nil
}

// createLayerTx inserts a layer at order max+1 (0 for the first layer).
func createLayerTx(ctx context.Context, tx *sql.Tx, name string) (int, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) > 0 FROM layers WHERE name = ?`, name).Scan(&exists); err != nil {
		return 0, fmt.Errorf("checking layer name: %w", err)
	}
	if exists {
		return 0, fmt.Errorf("%w: %q", ErrLayerExists, name)
	}

	var order int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ord) + 1, 0) FROM layers`).Scan(&order); err != nil {
		return 0, fmt.Errorf("loading next layer order: %w", err)
	}

	var id int
	err := tx.QueryRowContext(ctx,
		`INSERT INTO layers (name, ord) VALUES (?, ?) RETURNING id`, name, order).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting layer: %w", err)
	}
	return id, nil
}

// adoptOrphansTx creates the default node of a new non-leaf layer and
// parents every orphan of the layer below to it.
func adoptOrphansTx(ctx context.Context, tx *sql.Tx, layerID int) error {
	var order int
	if err := tx.QueryRowContext(ctx, `SELECT ord FROM layers WHERE id = ?`, layerID).Scan(&order); err != nil {
		return fmt.Errorf("loading layer order: %w", err)
	}
	if order == 0 {
		return nil
	}

	var defaultID int
	err := tx.QueryRowContext(ctx, `
		INSERT INTO nodes (layer_id, name, color)
		VALUES (?, ?, ?)
		RETURNING id`, layerID, DefaultNodeName, DefaultNodeColor).Scan(&defaultID)
	if err != nil {
		return fmt.Errorf("inserting default node: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE nodes SET parent_node_id = ?
		WHERE parent_node_id IS NULL
		  AND layer_id = (SELECT id FROM layers WHERE ord = ?)`, defaultID, order-1)
	if err != nil {
		return fmt.Errorf("adopting orphans: %w", err)
	}
	return nil
}

// Delete removes the top layer and its nodes. Nodes of the layer below
// lose their parent.
func (s *LayerService) Delete(ctx context.Context, id int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	layer, err := getLayer(ctx, tx, id)
	if err != nil {
		return err
	}
	var top int
	if err := tx.QueryRowContext(ctx, `SELECT MAX(ord) FROM layers`).Scan(&top); err != nil {
		return fmt.Errorf("loading top layer: %w", err)
	}
	if layer.Order != top {
		return fmt.Errorf("%w: %q is at level %d of %d", ErrNotTopLayer, layer.Name, layer.Order, top)
	}

	stmts := []string{
		`UPDATE nodes SET parent_node_id = NULL
		 WHERE parent_node_id IN (SELECT id FROM nodes WHERE layer_id = ?)`,
		`DELETE FROM nodes WHERE layer_id = ?`,
		`DELETE FROM layers WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("deleting layer %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	s.log.Info("layer deleted", zap.Int("id", id))
	s.bus.Publish(Event{Resource: "layers", Action: "deleted", ID: strconv.Itoa(id)})
	return nil
}
