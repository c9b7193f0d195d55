package godb

import (
	"testing"
	"time"
)

func makeBufferPoolTestTable(t *testing.T) (*TupleDesc, *HeapFile, *BufferPool) {
	t.Helper()
	return makeHeapFileTestVars(t, "bufferpool")
}

// TestNoStealAbortRestoresOriginalBytes inserts a tuple under tid, aborts,
// and checks the table is empty afterward: NO-STEAL means the dirtied page
// is simply dropped from cache, never written back ahead of commit.
func TestNoStealAbortRestoresOriginalBytes(t *testing.T) {
	td, hf, bp := makeBufferPoolTestTable(t)

	tid1 := NewTID()
	bp.BeginTransaction(tid1)
	tup := &Tuple{Desc: *td, Fields: []DBValue{StringField{Value: "row"}, IntField{Value: 1}}}
	if _, err := hf.insertTuple(tid1, tup); err != nil {
		t.Fatalf("insertTuple: %v", err)
	}
	if err := bp.TransactionComplete(tid1, false); err != nil {
		t.Fatalf("TransactionComplete(abort): %v", err)
	}

	tid2 := NewTID()
	bp.BeginTransaction(tid2)
	it, _ := hf.Iterator(tid2)
	it.Open()
	tuples, err := drainAll(it)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	if len(tuples) != 0 {
		t.Fatalf("expected no tuples after abort, got %d", len(tuples))
	}
}

// TestConflictingWriteLocksTimeOut has two transactions fight over the same
// page; the second should abort with TransactionAbortedError once the
// configured deadlock timeout elapses, rather than block forever.
func TestConflictingWriteLocksTimeOut(t *testing.T) {
	td, hf, bp := makeBufferPoolTestTable(t)
	bp.SetDeadlockTimeout(50 * time.Millisecond)

	setupTid := NewTID()
	bp.BeginTransaction(setupTid)
	seed := &Tuple{Desc: *td, Fields: []DBValue{StringField{Value: "row"}, IntField{Value: 1}}}
	if _, err := hf.insertTuple(setupTid, seed); err != nil {
		t.Fatalf("seed insertTuple: %v", err)
	}
	bp.TransactionComplete(setupTid, true)

	pid := NewHeapPageID(hf.ID(), 0)

	tid1 := NewTID()
	bp.BeginTransaction(tid1)
	if _, err := bp.GetPage(tid1, pid, ReadWrite); err != nil {
		t.Fatalf("GetPage tid1: %v", err)
	}

	tid2 := NewTID()
	bp.BeginTransaction(tid2)
	_, err := bp.GetPage(tid2, pid, ReadWrite)
	if err == nil {
		t.Fatalf("expected tid2 to time out waiting for tid1's exclusive lock")
	}
	gerr, ok := err.(GoDBError)
	if !ok || gerr.Code() != TransactionAbortedError {
		t.Fatalf("expected TransactionAbortedError, got %v", err)
	}

	bp.TransactionComplete(tid1, true)
	bp.TransactionComplete(tid2, false)
}

// TestSharedLocksAreCompatible checks that two transactions can both hold a
// ReadOnly lock on the same page at once.
func TestSharedLocksAreCompatible(t *testing.T) {
	td, hf, bp := makeBufferPoolTestTable(t)

	setupTid := NewTID()
	bp.BeginTransaction(setupTid)
	seed := &Tuple{Desc: *td, Fields: []DBValue{StringField{Value: "row"}, IntField{Value: 1}}}
	if _, err := hf.insertTuple(setupTid, seed); err != nil {
		t.Fatalf("seed insertTuple: %v", err)
	}
	bp.TransactionComplete(setupTid, true)

	pid := NewHeapPageID(hf.ID(), 0)

	tid1 := NewTID()
	bp.BeginTransaction(tid1)
	if _, err := bp.GetPage(tid1, pid, ReadOnly); err != nil {
		t.Fatalf("GetPage tid1: %v", err)
	}

	tid2 := NewTID()
	bp.BeginTransaction(tid2)
	if _, err := bp.GetPage(tid2, pid, ReadOnly); err != nil {
		t.Fatalf("GetPage tid2 should not block on a shared lock: %v", err)
	}

	bp.TransactionComplete(tid1, true)
	bp.TransactionComplete(tid2, true)
}
