package storageengine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	logging "github.com/sushant-115/minisql/pkg/logger"
	"go.uber.org/zap"
)

// DBFileExt is appended to database names to form their file name.
const DBFileExt = ".db"

// Registry owns the databases open in this process, keyed by name. Each
// database lives in <dataDir>/<name>.db.
type Registry struct {
	dataDir string
	opts    Options
	logger  *zap.Logger

	mu  sync.Mutex
	dbs map[string]*DBStorageEngine
}

func NewRegistry(dataDir string, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		dataDir: dataDir,
		opts:    opts,
		logger:  logging.Component(opts.Logger, "registry"),
		dbs:     make(map[string]*DBStorageEngine),
	}
}

func (r *Registry) pathFor(name string) string {
	return filepath.Join(r.dataDir, name+DBFileExt)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid database name %q", name)
	}
	return nil
}

// Create makes a new database. It fails with ErrDatabaseExists if the name
// is open or its file already exists.
func (r *Registry) Create(name string) (*DBStorageEngine, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dbs[name]; ok {
		return nil, fmt.Errorf("%w: %s", flushmanager.ErrDatabaseExists, name)
	}
	path := r.pathFor(name)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", flushmanager.ErrDatabaseExists, path)
	}
	return r.openLocked(name)
}

// Open returns the named database, opening (or creating) its file if it is
// not open yet.
func (r *Registry) Open(name string) (*DBStorageEngine, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.dbs[name]; ok {
		return db, nil
	}
	return r.openLocked(name)
}

func (r *Registry) openLocked(name string) (*DBStorageEngine, error) {
	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", r.dataDir, err)
	}
	db, err := Open(r.pathFor(name), r.opts)
	if err != nil {
		return nil, err
	}
	r.dbs[name] = db
	r.logger.Info("database registered", zap.String("name", name))
	return db, nil
}

// Get returns an already open database.
func (r *Registry) Get(name string) (*DBStorageEngine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	db, ok := r.dbs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", flushmanager.ErrDatabaseNotOpen, name)
	}
	return db, nil
}

// Close closes the named database and forgets it.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	db, ok := r.dbs[name]
	delete(r.dbs, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", flushmanager.ErrDatabaseNotOpen, name)
	}
	return db.Close()
}

// Drop closes the named database if it is open and deletes its file.
func (r *Registry) Drop(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	r.mu.Lock()
	db, ok := r.dbs[name]
	delete(r.dbs, name)
	r.mu.Unlock()

	var errs []error
	if ok {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(r.pathFor(name)); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove database %s: %w", name, err))
	}
	r.logger.Info("database dropped", zap.String("name", name))
	return errors.Join(errs...)
}

// List returns the names of the open databases in sorted order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.dbs))
	for name := range r.dbs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CloseAll closes every open database.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	dbs := r.dbs
	r.dbs = make(map[string]*DBStorageEngine)
	r.mu.Unlock()

	var errs []error
	for name, db := range dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
