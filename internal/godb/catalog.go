package godb

import (
	"sync"

	"golang.org/x/exp/slices"
)

// tableEntry pairs a registered DBFile with its declared primary key field
// name, so a future optimizer (out of scope here) would know which column to
// build statistics against.
type tableEntry struct {
	file  DBFile
	name  string
	pkey  string
}

// Catalog is the table registry: every DBFile the system knows about,
// indexed both by the id it reports and by the name it was registered
// under.
type Catalog struct {
	mu      sync.RWMutex
	byID    map[int]*tableEntry
	byName  map[string]int
}

// NewCatalog returns an empty table registry.
func NewCatalog() *Catalog {
	return &Catalog{
		byID:   make(map[int]*tableEntry),
		byName: make(map[string]int),
	}
}

// AddTable registers file under name with the given primary key field. A
// second registration under the same name replaces the first, matching how
// a `CREATE TABLE` that reopens an existing backing file is expected to
// behave.
func (c *Catalog) AddTable(file DBFile, name string, pkey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[file.ID()] = &tableEntry{file: file, name: name, pkey: pkey}
	c.byName[name] = file.ID()
}

// GetTableID looks up a table's id by name.
func (c *Catalog) GetTableID(name string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[name]
	if !ok {
		return 0, newGoDBError(TupleNotFoundError, "no table named %q", name)
	}
	return id, nil
}

// GetDatabaseFile resolves a table id to the DBFile backing it.
func (c *Catalog) GetDatabaseFile(id int) (DBFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return nil, newGoDBError(TupleNotFoundError, "no table with id %d", id)
	}
	return e.file, nil
}

// GetTupleDesc resolves a table id to its schema.
func (c *Catalog) GetTupleDesc(id int) (*TupleDesc, error) {
	f, err := c.GetDatabaseFile(id)
	if err != nil {
		return nil, err
	}
	return f.Descriptor(), nil
}

// TableIDIterator returns every registered table id, sorted ascending so
// callers (e.g. a full-database dump) see a stable order across runs.
func (c *Catalog) TableIDIterator() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// PrimaryKey returns the primary key field name a table was registered
// with.
func (c *Catalog) PrimaryKey(id int) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return "", newGoDBError(TupleNotFoundError, "no table with id %d", id)
	}
	return e.pkey, nil
}
