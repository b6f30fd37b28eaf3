package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// NodeService manages the nodes of the hierarchy.
type NodeService struct {
	db  *sql.DB
	bus *EventBus
	log *zap.Logger
}

// NewNodeService creates a node service.
func NewNodeService(db *sql.DB, bus *EventBus, log *zap.Logger) *NodeService {
	return &NodeService{db: db, bus: bus, log: log}
}

// List returns the nodes of a layer ordered by name.
func (s *NodeService) List(ctx context.Context, layerID int) ([]Node, error) {
	if _, err := getLayer(ctx, s.db, layerID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, layer_id, name, color, parent_node_id, geom IS NOT NULL
		FROM nodes
		WHERE layer_id = ?
		ORDER BY name, id`, layerID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer rows.Close()

	nodes := []Node{}
	for rows.Next() {
		var (
			n      Node
			parent sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.LayerID, &n.Name, &n.Color, &parent, &n.HasGeometry); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		if parent.Valid {
			p := int(parent.Int64)
			n.ParentNodeID = &p
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// Create adds a node to a non-leaf layer. Leaf nodes only come from a map
// import. A parent must live in the layer directly above.
func (s *NodeService) Create(ctx context.Context, in CreateNode) (Node, error) {
	layer, err := getLayer(ctx, s.db, in.LayerID)
	if err != nil {
		return Node{}, err
	}
	if layer.Order == 0 {
		return Node{}, fmt.Errorf("%w: layer %q is the leaf level", ErrInvalidNode, layer.Name)
	}
	if in.ParentNodeID != nil {
		var parentOrder int
		err := s.db.QueryRowContext(ctx, `
			SELECT l.ord FROM nodes n JOIN layers l ON l.id = n.layer_id
			WHERE n.id = ?`, *in.ParentNodeID).Scan(&parentOrder)
		if errors.Is(err, sql.ErrNoRows) {
			return Node{}, fmt.Errorf("%w: parent %d", ErrNodeNotFound, *in.ParentNodeID)
		}
		if err != nil {
			return Node{}, fmt.Errorf("loading parent node: %w", err)
		}
		if parentOrder != layer.Order+1 {
			return Node{}, fmt.Errorf("%w: parent %d is not in the layer above %q", ErrInvalidNode, *in.ParentNodeID, layer.Name)
		}
	}
	if in.Color == "" {
		in.Color = DefaultNodeColor
	}

	n := Node{LayerID: in.LayerID, Name: in.Name, Color: in.Color, ParentNodeID: in.ParentNodeID}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO nodes (layer_id, name, color, parent_node_id)
		VALUES (?, ?, ?, ?)
		RETURNING id`, in.LayerID, in.Name, in.Color, in.ParentNodeID).Scan(&n.ID)
	if err != nil {
		return Node{}, fmt.Errorf("inserting node: %w", err)
	}

	s.log.Debug("node created", zap.Int("id", n.ID), zap.Int("layer", n.LayerID))
	s.bus.Publish(Event{Resource: "nodes", Action: "created", ID: strconv.Itoa(n.ID)})
	return n, nil
}

const nodeSelect = `
	SELECT n.id, n.layer_id, n.name, n.color, n.parent_node_id, n.geom IS NOT NULL, l.ord
	FROM nodes n JOIN layers l ON l.id = n.layer_id`

// getNode loads a node and the order of its layer.
func getNode(ctx context.Context, q querier, id int) (Node, int, error) {
	var (
		n      Node
		parent sql.NullInt64
		order  int
	)
	err := q.QueryRowContext(ctx, nodeSelect+` WHERE n.id = ?`, id).
		Scan(&n.ID, &n.LayerID, &n.Name, &n.Color, &parent, &n.HasGeometry, &order)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, 0, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	if err != nil {
		return Node{}, 0, fmt.Errorf("loading node %d: %w", id, err)
	}
	if parent.Valid {
		p := int(parent.Int64)
		n.ParentNodeID = &p
	}
	return n, order, nil
}

// Get returns one node.
func (s *NodeService) Get(ctx context.Context, id int) (Node, error) {
	n, _, err := getNode(ctx, s.db, id)
	return n, err
}

// Update renames, recolors or reparents a node.
func (s *NodeService) Update(ctx context.Context, id int, in UpdateNode) (Node, error) {
	nodes, err := s.update(ctx, []NodeUpdate{{ID: id, UpdateNode: in}})
	if err != nil {
		return Node{}, err
	}
	return nodes[0], nil
}

// BulkUpdate applies every update or none. A node may appear only once.
func (s *NodeService) BulkUpdate(ctx context.Context, in []NodeUpdate) ([]Node, error) {
	seen := make(map[int]struct{}, len(in))
	for _, u := range in {
		if _, dup := seen[u.ID]; dup {
			return nil, fmt.Errorf("%w: node %d is listed more than once", ErrInvalidNode, u.ID)
		}
		seen[u.ID] = struct{}{}
	}
	return s.update(ctx, in)
}

func (s *NodeService) update(ctx context.Context, in []NodeUpdate) ([]Node, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out := make([]Node, 0, len(in))
	for _, u := range in {
		n, order, err := getNode(ctx, tx, u.ID)
		if err != nil {
			return nil, err
		}
		if u.ParentNodeID != nil && !sameParent(n.ParentNodeID, u.ParentNodeID) {
			_, parentOrder, err := getNode(ctx, tx, *u.ParentNodeID)
			if err != nil {
				return nil, fmt.Errorf("parent of node %d: %w", u.ID, err)
			}
			if parentOrder != order+1 {
				return nil, fmt.Errorf("%w: parent %d is not in the layer above node %d", ErrInvalidNode, *u.ParentNodeID, u.ID)
			}
		}
		n.Name = u.Name
		if u.Color != "" {
			n.Color = u.Color
		}
		n.ParentNodeID = u.ParentNodeID
		if _, err := tx.ExecContext(ctx, `
			UPDATE nodes SET name = ?, color = ?, parent_node_id = ?
			WHERE id = ?`, n.Name, n.Color, n.ParentNodeID, n.ID); err != nil {
			return nil, fmt.Errorf("updating node %d: %w", n.ID, err)
		}
		out = append(out, n)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for _, n := range out {
		s.log.Debug("node updated", zap.Int("id", n.ID), zap.Int("layer", n.LayerID))
		s.bus.Publish(Event{Resource: "nodes", Action: "updated", ID: strconv.Itoa(n.ID)})
	}
	return out, nil
}

func sameParent(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Shape is a node with the geometry it renders with.
type Shape struct {
	ID       int
	Name     string
	Color    string
	Geometry orb.Geometry
}

// Shapes returns the renderable nodes of a layer. A node with its own
// geometry renders with it; otherwise it renders with the geometries of all
// its descendants. Nodes with neither are omitted.
func (s *NodeService) Shapes(ctx context.Context, layerID int) ([]Shape, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE descendants AS (
			SELECT id, id AS root_id, geom
			FROM nodes
			WHERE layer_id = ?
			UNION ALL
			SELECT n.id, d.root_id, n.geom
			FROM nodes n
			JOIN descendants d ON n.parent_node_id = d.id
		)
		SELECT d.root_id, r.name, r.color, d.geom
		FROM descendants d
		JOIN nodes r ON r.id = d.root_id
		WHERE d.geom IS NOT NULL
		  AND (r.geom IS NULL OR d.id = d.root_id)
		ORDER BY d.root_id, d.id`, layerID)
	if err != nil {
		return nil, fmt.Errorf("loading shapes: %w", err)
	}
	defer rows.Close()

	var (
		shapes []Shape
		parts  []orb.Geometry
	)
	flush := func() {
		if len(parts) > 0 {
			shapes[len(shapes)-1].Geometry = combine(parts)
		}
		parts = nil
	}
	for rows.Next() {
		var (
			id          int
			name, color string
			raw         string
		)
		if err := rows.Scan(&id, &name, &color, &raw); err != nil {
			return nil, fmt.Errorf("scanning shape: %w", err)
		}
		g, err := geojson.UnmarshalGeometry([]byte(raw))
		if err != nil {
			s.log.Warn("skipping unreadable geometry", zap.Int("node", id), zap.Error(err))
			continue
		}
		if len(shapes) == 0 || shapes[len(shapes)-1].ID != id {
			flush()
			shapes = append(shapes, Shape{ID: id, Name: name, Color: color})
		}
		parts = append(parts, g.Geometry())
	}
	flush()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// A root whose only geometries were unreadable has nothing to draw.
	out := shapes[:0]
	for _, sh := range shapes {
		if sh.Geometry != nil {
			out = append(out, sh)
		}
	}
	return out, nil
}

// combine merges parts into one geometry: a MultiPolygon when every part is
// areal, a Collection otherwise.
func combine(parts []orb.Geometry) orb.Geometry {
	if len(parts) == 1 {
		return parts[0]
	}
	var mp orb.MultiPolygon
	for _, p := range parts {
		switch g := p.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		default:
			return orb.Collection(parts)
		}
	}
	return mp
}
