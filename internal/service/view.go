package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-territory/internal/mapview"
)

// View is the desired map state of one viewer session.
type View struct {
	ID        string            `json:"id" msgpack:"id" doc:"Session ID" example:"0b6c1f0e-6a7e-4c9e-9d8e-2f3a4b5c6d7e"`
	State     mapview.ViewState `json:"state" msgpack:"state" doc:"Desired map state"`
	UpdatedAt time.Time         `json:"updatedAt" msgpack:"updated" doc:"Last change"`
}

// viewSnapshot is the on-disk form of all views.
type viewSnapshot struct {
	Version int    `msgpack:"v"`
	Views   []View `msgpack:"views"`
}

const viewSnapshotVersion = 1

// ViewService holds one desired ViewState per viewer session. Views are
// kept in memory and snapshotted to disk with msgpack after every change.
type ViewService struct {
	mu      sync.RWMutex
	views   map[string]View
	path    string
	catalog func() mapview.Catalog
	bus     *EventBus
	log     *zap.Logger
}

// NewViewService loads the snapshot from dataDir. An empty dataDir keeps
// views in memory only. catalog returns the current base map catalog.
func NewViewService(dataDir string, catalog func() mapview.Catalog, bus *EventBus, log *zap.Logger) (*ViewService, error) {
	s := &ViewService{
		views:   make(map[string]View),
		catalog: catalog,
		bus:     bus,
		log:     log,
	}
	if dataDir == "" {
		return s, nil
	}
	s.path = filepath.Join(dataDir, "views.msgpack")
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ViewService) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening view snapshot: %w", err)
	}
	defer f.Close()

	var snap viewSnapshot
	if err := msgpack.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decoding view snapshot: %w", err)
	}
	if snap.Version != viewSnapshotVersion {
		s.log.Warn("ignoring view snapshot of unknown version", zap.Int("version", snap.Version))
		return nil
	}
	for _, v := range snap.Views {
		s.views[v.ID] = v
	}
	s.log.Info("views loaded", zap.Int("count", len(snap.Views)), zap.String("path", s.path))
	return nil
}

// persist writes the snapshot. Callers hold s.mu.
func (s *ViewService) persist() error {
	if s.path == "" {
		return nil
	}
	snap := viewSnapshot{Version: viewSnapshotVersion, Views: s.sortedLocked()}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(s.path), "views-*.tmp")
	if err != nil {
		return fmt.Errorf("creating view snapshot: %w", err)
	}
	defer os.Remove(f.Name())
	if err := msgpack.NewEncoder(f).Encode(&snap); err != nil {
		f.Close()
		return fmt.Errorf("encoding view snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), s.path)
}

func (s *ViewService) sortedLocked() []View {
	out := make([]View, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b View) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// defaultBaseMap is the first catalog style, or none for an empty catalog.
func defaultBaseMap(catalog mapview.Catalog) mapview.BaseMapName {
	if names := catalog.Names(); len(names) > 0 {
		return names[0]
	}
	return mapview.BaseMapNone
}

// normalize fills in the default base map and validates the state.
func (s *ViewService) normalize(state mapview.ViewState) (mapview.ViewState, error) {
	catalog := s.catalog()
	if state.BaseMap == "" {
		state.BaseMap = defaultBaseMap(catalog)
	}
	if state.Layers == nil {
		state.Layers = []mapview.LayerView{}
	}
	if err := state.Validate(catalog); err != nil {
		return mapview.ViewState{}, err
	}
	return state.Clone(), nil
}

// List returns all views ordered by ID.
func (s *ViewService) List() []View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Create starts a new session with the given state.
func (s *ViewService) Create(state mapview.ViewState) (View, error) {
	state, err := s.normalize(state)
	if err != nil {
		return View{}, err
	}
	v := View{ID: uuid.NewString(), State: state, UpdatedAt: time.Now().UTC()}

	s.mu.Lock()
	s.views[v.ID] = v
	err = s.persist()
	s.mu.Unlock()
	if err != nil {
		return View{}, err
	}

	s.log.Debug("view created", zap.String("id", v.ID))
	s.bus.Publish(Event{Resource: "views", Action: "created", ID: v.ID})
	return v, nil
}

// Get returns a view by ID.
func (s *ViewService) Get(id string) (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[id]
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	v.State = v.State.Clone()
	return v, nil
}

// Set replaces the desired state of a view.
func (s *ViewService) Set(id string, state mapview.ViewState) (View, error) {
	state, err := s.normalize(state)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	v, ok := s.views[id]
	if !ok {
		s.mu.Unlock()
		return View{}, fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	v.State = state
	v.UpdatedAt = time.Now().UTC()
	s.views[id] = v
	err = s.persist()
	s.mu.Unlock()
	if err != nil {
		return View{}, err
	}

	s.bus.Publish(Event{Resource: "views", Action: "updated", ID: id})
	return v, nil
}

// RetargetBaseMaps moves views whose base map left the current catalog to
// the catalog's first style, and returns the IDs of the views it changed.
func (s *ViewService) RetargetBaseMaps() ([]string, error) {
	catalog := s.catalog()
	fallback := defaultBaseMap(catalog)

	s.mu.Lock()
	var changed []string
	for id, v := range s.views {
		if v.State.BaseMap == mapview.BaseMapNone {
			continue
		}
		if _, ok := catalog.Lookup(v.State.BaseMap); ok {
			continue
		}
		s.log.Info("view base map left the catalog",
			zap.String("id", id), zap.String("from", string(v.State.BaseMap)), zap.String("to", string(fallback)))
		v.State.BaseMap = fallback
		v.UpdatedAt = time.Now().UTC()
		s.views[id] = v
		changed = append(changed, id)
	}
	var err error
	if len(changed) > 0 {
		err = s.persist()
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	slices.Sort(changed)
	for _, id := range changed {
		s.bus.Publish(Event{Resource: "views", Action: "updated", ID: id})
	}
	return changed, nil
}

// Delete ends a session.
func (s *ViewService) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.views[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	delete(s.views, id)
	err := s.persist()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.bus.Publish(Event{Resource: "views", Action: "deleted", ID: id})
	return nil
}
