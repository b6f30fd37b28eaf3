// Package service contains the business logic of the territory platform:
// the layer hierarchy, nodes, zip geography, map import, vector tiles and
// viewer sessions.
package service

import "errors"

var (
	ErrLayerNotFound   = errors.New("layer not found")
	ErrLayerExists     = errors.New("layer already exists")
	ErrNotTopLayer     = errors.New("only the top layer can be deleted")
	ErrNodeNotFound    = errors.New("node not found")
	ErrInvalidNode     = errors.New("invalid node")
	ErrInvalidImport   = errors.New("invalid map import")
	ErrMapExists       = errors.New("a map has already been imported")
	ErrInvalidZoom     = errors.New("invalid zoom level")
	ErrInvalidTile     = errors.New("tile coordinates out of range")
	ErrViewNotFound    = errors.New("view not found")
	ErrInvalidGeometry = errors.New("invalid geometry")
)

// DefaultNodeName is the catch-all parent created with every new layer.
const DefaultNodeName = "__default__"

// DefaultNodeColor is the color of nodes created without one.
const DefaultNodeColor = "#ffffff"

// Layer is one level of the territory hierarchy. Order 0 is the leaf level
// (zip codes); each higher order groups the level below it.
type Layer struct {
	ID        int    `json:"id" doc:"Layer ID" example:"2"`
	Name      string `json:"name" doc:"Display name" example:"Territory"`
	Order     int    `json:"order" doc:"Hierarchy level, 0 is the leaf level" example:"1"`
	NodeCount int    `json:"nodeCount" doc:"Number of nodes in the layer" example:"42"`
	TileURL   string `json:"tileUrl,omitempty" doc:"Vector tile URL template" example:"/tiles/2/{z}/{x}/{y}.pbf"`
}

// CreateLayer is the input for a new top layer.
type CreateLayer struct {
	Name string `json:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"Region"`
}

// Node is one territory, region or zip code.
type Node struct {
	ID           int    `json:"id" doc:"Node ID" example:"17"`
	LayerID      int    `json:"layerId" doc:"Layer the node belongs to" example:"2"`
	Name         string `json:"name" doc:"Node name" example:"North East"`
	Color        string `json:"color" doc:"Fill color (CSS)" example:"#ffffff"`
	ParentNodeID *int   `json:"parentNodeId,omitempty" doc:"Parent node in the layer above"`
	HasGeometry  bool   `json:"hasGeometry" doc:"Whether the node carries its own geometry"`
}

// CreateNode is the input for a node in a non-leaf layer.
type CreateNode struct {
	LayerID      int    `json:"layerId" required:"true" doc:"Layer ID" example:"2"`
	Name         string `json:"name" required:"true" minLength:"1" doc:"Node name" example:"North East"`
	Color        string `json:"color,omitempty" doc:"Fill color (CSS)" example:"#3388ff"`
	ParentNodeID *int   `json:"parentNodeId,omitempty" doc:"Parent node in the layer above"`
}

// UpdateNode replaces the editable fields of a node. A nil parent detaches
// the node; an empty color keeps the current one.
type UpdateNode struct {
	Name         string `json:"name" required:"true" minLength:"1" doc:"Node name" example:"North East"`
	Color        string `json:"color,omitempty" doc:"Fill color (CSS)" example:"#3388ff"`
	ParentNodeID *int   `json:"parentNodeId,omitempty" doc:"Parent node in the layer above"`
}

// NodeUpdate is one entry of a bulk node update.
type NodeUpdate struct {
	ID int `json:"id" required:"true" minimum:"1" doc:"Node ID" example:"17"`
	UpdateNode
}

// LayerSetup maps one hierarchy level to a spreadsheet column.
type LayerSetup struct {
	Name   string `json:"name" required:"true" minLength:"1" doc:"Layer name" example:"Zip Code"`
	Header string `json:"header" required:"true" minLength:"1" doc:"Column header" example:"zip"`
}

// DataFieldSetup maps a data field to a spreadsheet column.
type DataFieldSetup struct {
	Name   string `json:"name" required:"true" minLength:"1" doc:"Field name" example:"Population"`
	Header string `json:"header" required:"true" minLength:"1" doc:"Column header" example:"pop"`
	Type   string `json:"type" required:"true" enum:"text,number" doc:"Field type" example:"number"`
}

// ImportMap is a spreadsheet plus its layer configuration. Layers run
// from the leaf level (zip codes) upwards.
type ImportMap struct {
	Name       string           `json:"name" required:"true" minLength:"1" doc:"Map name" example:"Sales 2026"`
	Layers     []LayerSetup     `json:"layers" required:"true" minItems:"1" doc:"Hierarchy levels, leaf first"`
	DataFields []DataFieldSetup `json:"dataFields,omitempty" doc:"Data columns"`
	Headers    []string         `json:"headers" required:"true" minItems:"1" doc:"Spreadsheet header row"`
	Values     [][]any          `json:"values" required:"true" doc:"Spreadsheet rows"`
}

// ImportResult summarizes a map import.
type ImportResult struct {
	Name    string   `json:"name" doc:"Map name"`
	Layers  []Layer  `json:"layers" doc:"Created layers, leaf first"`
	Nodes   int      `json:"nodes" doc:"Number of nodes created"`
	Skipped []string `json:"skipped" doc:"Zip codes without geography"`
}

// Event represents a resource mutation.
type Event struct {
	Resource string // e.g. "views", "layers", "basemaps"
	Action   string // "created", "updated", "deleted"
	ID       string // resource ID
}
