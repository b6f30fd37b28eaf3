package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// ZipCodeProperty is the default feature property holding the zip code.
const ZipCodeProperty = "ZCTA5CE20"

// GeographyService holds the reference zip code geometries leaf nodes are
// matched against.
type GeographyService struct {
	db  *sql.DB
	bus *EventBus
	log *zap.Logger
}

// NewGeographyService creates a geography service.
func NewGeographyService(db *sql.DB, bus *EventBus, log *zap.Logger) *GeographyService {
	return &GeographyService{db: db, bus: bus, log: log}
}

// NormalizeZip left-pads a zip code with zeros to five digits.
func NormalizeZip(zip string) string {
	zip = strings.TrimSpace(zip)
	if n := len(zip); n > 0 && n < 5 {
		zip = strings.Repeat("0", 5-n) + zip
	}
	return zip
}

// ImportGeoJSON loads a FeatureCollection of zip code areas. keyProp names
// the feature property that holds the zip code. Existing zip codes are
// replaced. Only polygonal features are accepted.
func (s *GeographyService) ImportGeoJSON(ctx context.Context, r io.Reader, keyProp string) (int, error) {
	if keyProp == "" {
		keyProp = ZipCodeProperty
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO geography_zip_codes (zip_code, geom) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for i, f := range fc.Features {
		zip := NormalizeZip(propertyString(f.Properties, keyProp))
		if zip == "" {
			return 0, fmt.Errorf("%w: feature %d has no %q property", ErrInvalidGeometry, i, keyProp)
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return 0, fmt.Errorf("%w: zip %s is not a polygon", ErrInvalidGeometry, zip)
		}
		raw, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
		if err != nil {
			return 0, fmt.Errorf("encoding zip %s: %w", zip, err)
		}
		if _, err := stmt.ExecContext(ctx, zip, string(raw)); err != nil {
			return 0, fmt.Errorf("storing zip %s: %w", zip, err)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing geography: %w", err)
	}

	s.log.Info("zip geography imported", zap.Int("features", count))
	s.bus.Publish(Event{Resource: "geography", Action: "updated"})
	return count, nil
}

// ImportDir imports every .geojson and .json file of dir in name order.
// A missing directory imports nothing.
func (s *GeographyService) ImportDir(ctx context.Context, dir, keyProp string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	total := 0
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".geojson" && ext != ".json") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return total, err
		}
		n, err := s.ImportGeoJSON(ctx, f, keyProp)
		f.Close()
		if err != nil {
			return total, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		total += n
	}
	return total, nil
}

// Count returns the number of stored zip code geometries.
func (s *GeographyService) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM geography_zip_codes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting zip codes: %w", err)
	}
	return n, nil
}

func propertyString(p geojson.Properties, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
