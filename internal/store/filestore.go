// Package store persists air quality data as flat JSON files and serves as
// the offline fallback when the upstream provider is unreachable.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smogwatch/smogwatch/internal/airquality"
)

// Cache file names within the data directory.
const (
	StationsFile     = "stations.json"
	SensorsFile      = "sensors.json"
	MeasurementsFile = "measurements.json"

	backupDir        = "backups"
	backupTimeLayout = "20060102_150405"
)

// Store errors.
var (
	ErrNotCached = errors.New("no cached data")
)

// FileStore reads and writes the three JSON cache files. Each file holds a
// single JSON array; sensor records are keyed by station and measurement
// series by sensor, with at most one entry per key. All writes replace the
// whole file through a temp file and rename.
type FileStore struct {
	dir    string
	logger zerolog.Logger

	mu sync.RWMutex
}

// New creates a FileStore rooted at dir, creating the directory if needed.
func New(dir string, logger zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the data directory.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// SaveStations replaces the cached station list.
func (fs *FileStore) SaveStations(stations []airquality.Station) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writeFile(StationsFile, stations)
}

// LoadStations returns the cached station list, or ErrNotCached when the
// file does not exist.
func (fs *FileStore) LoadStations() ([]airquality.Station, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var stations []airquality.Station
	if err := fs.readFile(StationsFile, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// HasStations reports whether a station cache exists.
func (fs *FileStore) HasStations() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, err := os.Stat(filepath.Join(fs.dir, StationsFile))
	return err == nil
}

// UpsertSensors replaces the cached sensors of one station, keeping sensors
// of other stations intact. The sensors file is a single flat array; the
// per-station uniqueness is maintained by scanning out the old entries
// before appending the new ones.
func (fs *FileStore) UpsertSensors(stationID int, sensors []airquality.Sensor) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var all []airquality.Sensor
	if err := fs.readFile(SensorsFile, &all); err != nil && !errors.Is(err, ErrNotCached) {
		return err
	}

	kept := all[:0]
	for _, s := range all {
		if s.StationID != stationID {
			kept = append(kept, s)
		}
	}
	kept = append(kept, sensors...)

	return fs.writeFile(SensorsFile, kept)
}

// LoadSensors returns the cached sensors for one station. An existing cache
// with no entries for the station returns an empty, non-nil slice;
// a missing cache file returns ErrNotCached.
func (fs *FileStore) LoadSensors(stationID int) ([]airquality.Sensor, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var all []airquality.Sensor
	if err := fs.readFile(SensorsFile, &all); err != nil {
		return nil, err
	}

	sensors := make([]airquality.Sensor, 0, len(all))
	for _, s := range all {
		if s.StationID == stationID {
			sensors = append(sensors, s)
		}
	}
	return sensors, nil
}

// UpsertSeries replaces the cached measurement series of one sensor,
// stamping it with the current time.
func (fs *FileStore) UpsertSeries(series *airquality.Series) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var all []airquality.Series
	if err := fs.readFile(MeasurementsFile, &all); err != nil && !errors.Is(err, ErrNotCached) {
		return err
	}

	entry := *series
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now()
	}

	replaced := false
	for i := range all {
		if all[i].SensorID == entry.SensorID {
			all[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		all = append(all, entry)
	}

	return fs.writeFile(MeasurementsFile, all)
}

// LoadSeries returns the cached series for one sensor. ErrNotCached is
// returned both when the file is missing and when the sensor has no entry.
func (fs *FileStore) LoadSeries(sensorID int) (*airquality.Series, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var all []airquality.Series
	if err := fs.readFile(MeasurementsFile, &all); err != nil {
		return nil, err
	}

	for i := range all {
		if all[i].SensorID == sensorID {
			return &all[i], nil
		}
	}
	return nil, ErrNotCached
}

// Backup copies a cache file into the backups directory with a timestamped
// name. A missing source file is not an error.
func (fs *FileStore) Backup(name string) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	src := filepath.Join(fs.dir, name)
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}

	dir := filepath.Join(fs.dir, backupDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	dst := filepath.Join(dir, time.Now().Format(backupTimeLayout)+"_"+name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	fs.logger.Debug().Str("file", name).Str("backup", dst).Msg("cache file backed up")
	return nil
}

// BackupAll backs up every cache file that exists.
func (fs *FileStore) BackupAll() error {
	for _, name := range []string{StationsFile, SensorsFile, MeasurementsFile} {
		if err := fs.Backup(name); err != nil {
			return err
		}
	}
	return nil
}

// readFile decodes one cache file into v. Callers hold fs.mu.
func (fs *FileStore) readFile(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(fs.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotCached
		}
		return fmt.Errorf("read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// writeFile encodes v into a temp file and renames it over the cache file so
// readers never observe a partial write. Callers hold fs.mu.
func (fs *FileStore) writeFile(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(fs.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(fs.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
