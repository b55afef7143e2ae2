package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
)

// ReadDataset decodes a JSON dataset file.
func ReadDataset(path string) (domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var ds domain.Dataset
	if err := json.NewDecoder(f).Decode(&ds); err != nil {
		return domain.Dataset{}, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return ds, nil
}

// Load replaces the store contents with ds and marks a new generation. The
// dataset is validated and built aside, then swapped in at once, so a
// rejected dataset leaves the previous contents serving.
func (s *Store) Load(ctx context.Context, ds domain.Dataset) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := domain.ValidateVertices(ds.Vertices); err != nil {
		return 0, domain.NewError(domain.KindDataIntegrity, "load vertices", err)
	}
	if err := domain.ValidateEdges(ds.Edges); err != nil {
		return 0, domain.NewError(domain.KindDataIntegrity, "load edges", err)
	}
	pois, err := s.repairPointsOfInterest(ds.PointsOfInterest)
	if err != nil {
		return 0, err
	}

	next := newNetwork()
	next.addVertices(ds.Vertices)
	skipped := next.addEdges(ds.Edges)
	next.addPointsOfInterest(pois)
	s.warnSkipped(skipped)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setNetwork(next)
	s.generation++
	s.area = ds.Area
	return s.generation, nil
}

// LoadFile reads path and loads it into the store.
func (s *Store) LoadFile(ctx context.Context, path string) (int64, error) {
	ds, err := ReadDataset(path)
	if err != nil {
		return 0, err
	}
	gen, err := s.Load(ctx, ds)
	if err != nil {
		return 0, fmt.Errorf("load dataset %s: %w", path, err)
	}
	s.logger.Info("dataset loaded",
		"path", path,
		"area", ds.Area,
		"generation", gen,
		"vertices", len(ds.Vertices),
		"edges", len(ds.Edges),
		"pharmacies", len(ds.PointsOfInterest),
	)
	return gen, nil
}

const reloadDebounce = 500 * time.Millisecond

// Watch reloads path whenever it is written or replaced, until ctx is done.
// The parent directory is watched so editors that rename over the file are
// picked up. onReload, when set, receives the new generation.
func (s *Store) Watch(ctx context.Context, path string, onReload func(int64)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create dataset watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("resolve dataset path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					gen, err := s.LoadFile(ctx, abs)
					if err != nil {
						s.logger.Error("dataset reload failed", "path", abs, "error", err)
						return
					}
					if onReload != nil {
						onReload(gen)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("dataset watcher error", "error", err)
			}
		}
	}()
	return nil
}
