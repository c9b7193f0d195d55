package godb

import "sync"

// Database bundles a Catalog and the BufferPool that serves it behind a
// single global handle, mirroring the original SimpleDB/GoDB convention that
// operators and the SQL shell reach the storage layer through one process-
// wide instance rather than threading a context object everywhere.
type Database struct {
	catalog    *Catalog
	bufferPool *BufferPool
}

// NewDatabase wires a fresh Catalog and BufferPool together. numPages sizes
// the buffer pool; pass DefaultBufferPoolSize when the caller has no
// specific capacity in mind.
func NewDatabase(numPages int) *Database {
	catalog := NewCatalog()
	return &Database{
		catalog:    catalog,
		bufferPool: newBufferPool(numPages, catalog),
	}
}

// Catalog returns the table registry.
func (d *Database) Catalog() *Catalog {
	return d.catalog
}

// BufferPool returns the page cache and lock manager.
func (d *Database) BufferPool() *BufferPool {
	return d.bufferPool
}

var (
	defaultDatabase     *Database
	defaultDatabaseLock sync.Mutex
)

// SetDefaultDatabase installs d as the process-wide default, used by code
// (notably the SQL shell) that does not carry a *Database explicitly.
func SetDefaultDatabase(d *Database) {
	defaultDatabaseLock.Lock()
	defer defaultDatabaseLock.Unlock()
	defaultDatabase = d
}

// DefaultDatabase returns the process-wide default, creating one with
// DefaultBufferPoolSize capacity on first use.
func DefaultDatabase() *Database {
	defaultDatabaseLock.Lock()
	defer defaultDatabaseLock.Unlock()
	if defaultDatabase == nil {
		defaultDatabase = NewDatabase(DefaultBufferPoolSize)
	}
	return defaultDatabase
}
