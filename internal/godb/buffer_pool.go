package godb

import (
	"sync"
	"time"
)

// Permission is the lock strength requested when fetching a page.
type Permission int

const (
	ReadOnly Permission = iota
	ReadWrite
)

// lockPollInterval is how often a blocked getPage call re-checks whether the
// lock it wants has become available. The wait loop releases bp.mu for the
// duration of each sleep so other transactions can make progress — see
// SPEC_FULL.md §4.4.
const lockPollInterval = 2 * time.Millisecond

// BufferPool is the bounded, concurrency-safe page cache that every read and
// write in the system goes through. It also doubles as the lock manager:
// strict two-phase locking means a transaction's locks are only released at
// transactionComplete, never earlier.
type BufferPool struct {
	mu      sync.Mutex
	catalog *Catalog

	capacity int
	cache    map[PageID]Page

	sharedLocks   map[PageID]map[TransactionID]bool
	exclusiveLock map[PageID]TransactionID
	txnLocks      map[TransactionID]map[PageID]bool

	deadlockTimeout time.Duration
}

func newBufferPool(numPages int, catalog *Catalog) *BufferPool {
	return &BufferPool{
		catalog:         catalog,
		capacity:        numPages,
		cache:           make(map[PageID]Page),
		sharedLocks:     make(map[PageID]map[TransactionID]bool),
		exclusiveLock:   make(map[PageID]TransactionID),
		txnLocks:        make(map[TransactionID]map[PageID]bool),
		deadlockTimeout: DefaultDeadlockTimeoutMillis * time.Millisecond,
	}
}

// NewBufferPool builds a standalone buffer pool with its own catalog. Most
// callers should instead go through NewDatabase, which wires a BufferPool
// and Catalog that share table registrations.
func NewBufferPool(numPages int) (*BufferPool, error) {
	return newBufferPool(numPages, NewCatalog()), nil
}

// SetDeadlockTimeout overrides the default ~10s wait budget; tests use this
// to exercise the timeout path without actually waiting ten seconds.
func (bp *BufferPool) SetDeadlockTimeout(d time.Duration) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.deadlockTimeout = d
}

// BeginTransaction registers tid as active. It is not required before
// calling GetPage, but establishes an empty lock set up front so
// TransactionComplete has something to iterate even if tid never acquires a
// lock.
func (bp *BufferPool) BeginTransaction(tid TransactionID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if _, ok := bp.txnLocks[tid]; ok {
		return newGoDBError(TransactionAbortedError, "transaction %d already running", tid)
	}
	bp.txnLocks[tid] = make(map[PageID]bool)
	return nil
}

func (bp *BufferPool) canGrantReadOnlyLocked(tid TransactionID, pid PageID) bool {
	if owner, ok := bp.exclusiveLock[pid]; ok && owner != tid {
		return false
	}
	return true
}

func (bp *BufferPool) canGrantReadWriteLocked(tid TransactionID, pid PageID) bool {
	if owner, ok := bp.exclusiveLock[pid]; ok && owner != tid {
		return false
	}
	for holder := range bp.sharedLocks[pid] {
		if holder != tid {
			return false
		}
	}
	return true
}

func (bp *BufferPool) grantLocked(tid TransactionID, pid PageID, perm Permission) {
	if perm == ReadOnly {
		if bp.sharedLocks[pid] == nil {
			bp.sharedLocks[pid] = make(map[TransactionID]bool)
		}
		bp.sharedLocks[pid][tid] = true
	} else {
		bp.exclusiveLock[pid] = tid
	}
	if bp.txnLocks[tid] == nil {
		bp.txnLocks[tid] = make(map[PageID]bool)
	}
	bp.txnLocks[tid][pid] = true
}

// GetPage retrieves pid on behalf of tid, blocking until the requested
// Permission can be granted. A wait that exceeds the deadlock timeout raises
// TransactionAborted; the caller must then route control to
// TransactionComplete(tid, false).
func (bp *BufferPool) GetPage(tid TransactionID, pid PageID, perm Permission) (Page, error) {
	start := time.Now()

	bp.mu.Lock()
	for {
		var granted bool
		if perm == ReadOnly {
			granted = bp.canGrantReadOnlyLocked(tid, pid)
		} else {
			granted = bp.canGrantReadWriteLocked(tid, pid)
		}
		if granted {
			break
		}
		if time.Since(start) > bp.deadlockTimeout {
			bp.mu.Unlock()
			return nil, newGoDBError(TransactionAbortedError, "transaction %v timed out waiting for a lock on %+v", tid, pid)
		}
		bp.mu.Unlock()
		time.Sleep(lockPollInterval)
		bp.mu.Lock()
	}

	bp.grantLocked(tid, pid, perm)

	if pg, ok := bp.cache[pid]; ok {
		bp.mu.Unlock()
		return pg, nil
	}
	if len(bp.cache) >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			bp.mu.Unlock()
			return nil, err
		}
	}
	file, err := bp.catalog.GetDatabaseFile(pid.TableID)
	if err != nil {
		bp.mu.Unlock()
		return nil, err
	}
	bp.mu.Unlock()

	pg, err := file.readPage(pid)
	if err != nil {
		return nil, err
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	// Another reader may have installed the same page while we were doing
	// I/O with the pool unlocked; prefer whatever is already resident so two
	// concurrent readers of the same page converge on one Page value.
	if existing, ok := bp.cache[pid]; ok {
		return existing, nil
	}
	if len(bp.cache) >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			return nil, err
		}
	}
	bp.cache[pid] = pg
	return pg, nil
}

// evictLocked drops any one clean resident page from the cache. Called with
// bp.mu held. NO-STEAL forbids writing a dirty page back ahead of its
// transaction's commit, so if every resident page is dirty there is nothing
// safe to evict.
func (bp *BufferPool) evictLocked() error {
	for pid, pg := range bp.cache {
		if _, dirty := pg.IsDirty(); !dirty {
			delete(bp.cache, pid)
			return nil
		}
	}
	return newGoDBError(NoEvictablePageError, "buffer pool is full of dirty pages")
}

// ReleasePage drops tid's lock on pid without ending the transaction. Strict
// 2PL means almost nothing calls this before commit/abort; it exists for
// completeness and for tests that want to probe lock state directly.
func (bp *BufferPool) ReleasePage(tid TransactionID, pid PageID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.releaseLocked(tid, pid)
}

func (bp *BufferPool) releaseLocked(tid TransactionID, pid PageID) {
	delete(bp.sharedLocks[pid], tid)
	if len(bp.sharedLocks[pid]) == 0 {
		delete(bp.sharedLocks, pid)
	}
	if bp.exclusiveLock[pid] == tid {
		delete(bp.exclusiveLock, pid)
	}
	delete(bp.txnLocks[tid], pid)
}

// TransactionComplete ends tid: if commit is true, every page tid dirtied is
// flushed to its DBFile; if false, every page tid dirtied is dropped from
// the cache so it will be re-read from disk (which NO-STEAL guarantees still
// holds the pre-transaction bytes). Either way every lock tid holds is
// released.
func (bp *BufferPool) TransactionComplete(tid TransactionID, commit bool) error {
	bp.mu.Lock()
	held := bp.txnLocks[tid]
	pids := make([]PageID, 0, len(held))
	for pid := range held {
		pids = append(pids, pid)
	}
	bp.mu.Unlock()

	for _, pid := range pids {
		bp.mu.Lock()
		pg, ok := bp.cache[pid]
		bp.mu.Unlock()
		if !ok {
			continue
		}
		dirtyTid, dirty := pg.IsDirty()
		if !dirty || dirtyTid != tid {
			continue
		}
		if commit {
			file, err := bp.catalog.GetDatabaseFile(pid.TableID)
			if err != nil {
				return err
			}
			if err := file.writePage(pg); err != nil {
				return err
			}
			pg.MarkDirty(false, 0)
		} else {
			bp.mu.Lock()
			delete(bp.cache, pid)
			bp.mu.Unlock()
		}
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	for pid := range held {
		bp.releaseLocked(tid, pid)
	}
	delete(bp.txnLocks, tid)
	return nil
}

// installDirtied takes bp.mu, marks every page in pages dirty on tid's behalf and
// ensures the cache holds exactly that Page value, overwriting whatever was
// resident. DBFile.insertTuple/deleteTuple already acquired their own
// ReadWrite locks via GetPage, so this only needs to stamp dirtiness.
func (bp *BufferPool) installDirtied(tid TransactionID, pages []Page) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, p := range pages {
		p.MarkDirty(true, tid)
		bp.cache[p.PageID()] = p
	}
}

// InsertTuple inserts t into the table identified by tableID on behalf of
// tid, delegating to that table's DBFile.
func (bp *BufferPool) InsertTuple(tid TransactionID, tableID int, t *Tuple) error {
	file, err := bp.catalog.GetDatabaseFile(tableID)
	if err != nil {
		return err
	}
	pages, err := file.insertTuple(tid, t)
	if err != nil {
		return err
	}
	bp.installDirtied(tid, pages)
	return nil
}

// DeleteTuple removes t from the table identified by tableID on behalf of
// tid, delegating to that table's DBFile.
func (bp *BufferPool) DeleteTuple(tid TransactionID, tableID int, t *Tuple) error {
	file, err := bp.catalog.GetDatabaseFile(tableID)
	if err != nil {
		return err
	}
	pages, err := file.deleteTuple(tid, t)
	if err != nil {
		return err
	}
	bp.installDirtied(tid, pages)
	return nil
}

// FlushAllPages forces every dirty resident page to disk, regardless of
// which transaction dirtied it. It exists for tests and for an orderly
// shutdown path; normal operation flushes only through TransactionComplete.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for pid, pg := range bp.cache {
		if _, dirty := pg.IsDirty(); !dirty {
			continue
		}
		file, err := bp.catalog.GetDatabaseFile(pid.TableID)
		if err != nil {
			return err
		}
		if err := file.writePage(pg); err != nil {
			return err
		}
		pg.MarkDirty(false, 0)
	}
	return nil
}

// DiscardPage drops pid from the cache unconditionally, without regard to
// its dirty bit. Used by the B+ tree file's free-page management when a
// page is released back to the header chain and must not be handed out
// stale.
func (bp *BufferPool) DiscardPage(pid PageID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	delete(bp.cache, pid)
}
