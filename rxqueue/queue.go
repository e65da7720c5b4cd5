// Package rxqueue manages the receive data entries shared between the radio
// engine, which fills them, and the interrupt handler, which drains them.
package rxqueue

import (
	"errors"
	"fmt"
	"sync/atomic"
)

const (
	// Fixed header in front of every entry in the radio's queue format.
	EntryHeaderSize = 8
	// Max length byte the radio will accept.
	MaxLength = 255
	// Length byte in front of the payload plus one trailing status byte.
	NumAppendedBytes = 2
	// Entries used by a receive session.
	NumEntries = 2

	alignment = 4
)

var (
	ErrNoEntries      = errors.New("queue needs at least one entry")
	ErrBufferTooSmall = errors.New("buffer too small for queue entries")
)

type EntryStatus uint32

const (
	Pending EntryStatus = iota
	Active
	Busy
	Finished
	Unfinished
)

func (s EntryStatus) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Active:
		return "ACTIVE"
	case Busy:
		return "BUSY"
	case Finished:
		return "FINISHED"
	case Unfinished:
		return "UNFINISHED"
	default:
		return "?"
	}
}

type Entry struct {
	status atomic.Uint32
	length int
	// Data holds the length byte, the payload and the appended status byte.
	Data []byte
}

func (e *Entry) Status() EntryStatus {
	return EntryStatus(e.status.Load())
}

// Commit records n received bytes and hands the entry to the drain side.
// Only the fill side may call it, and only on an entry it acquired.
func (e *Entry) Commit(n int) {
	if n > len(e.Data) {
		n = len(e.Data)
	}
	e.length = n
	e.status.Store(uint32(Finished))
}

// Bytes returns the committed part of Data.
func (e *Entry) Bytes() []byte {
	return e.Data[:e.length]
}

type Queue struct {
	entries []Entry
	// Drain cursor; owned by the interrupt handler.
	cur int
	// Fill cursor; owned by the engine.
	fill int
}

func entrySize(length int) int {
	n := EntryHeaderSize + length + NumAppendedBytes
	return (n + alignment - 1) &^ (alignment - 1)
}

// BufferSize returns the bytes needed to hold numEntries entries of up to
// length payload bytes plus appended bytes, each entry 4-byte aligned.
func BufferSize(numEntries, length int) int {
	return numEntries * entrySize(length)
}

// Define lays numEntries entries out over buf. The returned queue keeps
// referencing buf; the caller must not touch it afterwards.
func Define(buf []byte, numEntries, length int) (*Queue, error) {
	if numEntries < 1 {
		return nil, ErrNoEntries
	}
	if need := BufferSize(numEntries, length); len(buf) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrBufferTooSmall, len(buf), need)
	}

	q := &Queue{entries: make([]Entry, numEntries)}
	size := entrySize(length)
	for i := range q.entries {
		off := i*size + EntryHeaderSize
		q.entries[i].Data = buf[off : off+length+NumAppendedBytes : off+length+NumAppendedBytes]
	}
	return q, nil
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// Current returns the entry under the drain cursor. Its contents may only be
// read once its status is Finished.
func (q *Queue) Current() *Entry {
	return &q.entries[q.cur]
}

// Next releases the current entry back to the fill side and advances the
// drain cursor.
func (q *Queue) Next() {
	e := &q.entries[q.cur]
	e.length = 0
	e.status.Store(uint32(Pending))
	q.cur = (q.cur + 1) % len(q.entries)
}

// Acquire returns the next entry for the fill side, or false when every entry
// still waits to be drained.
func (q *Queue) Acquire() (*Entry, bool) {
	e := &q.entries[q.fill]
	if !e.status.CompareAndSwap(uint32(Pending), uint32(Active)) {
		return nil, false
	}
	q.fill = (q.fill + 1) % len(q.entries)
	return e, true
}
