// Package sim is a host-side radio engine. It runs operation chains against
// a virtual radio timer and lets the caller play the part of the air
// interface, for tests and for dry runs without hardware.
package sim

import (
	"errors"
	"sync"

	"github.com/hatstand/blesniffer/rfcore"
	"github.com/hatstand/blesniffer/rxqueue"
)

var (
	ErrNotOpen   = errors.New("engine not open")
	ErrBadParams = errors.New("operation has no receive queue")
)

type Engine struct {
	mu       sync.Mutex
	open     bool
	openErr  error
	opens    int
	now      uint32
	sched    rfcore.Scheduler
	irq      func()
	posted   []*rfcore.Operation
	directs  []rfcore.DirectCommand
	received int
}

func New() *Engine {
	return &Engine{}
}

// FailOpen makes subsequent Opens fail with err.
func (e *Engine) FailOpen(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openErr = err
}

func (e *Engine) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.openErr != nil {
		return e.openErr
	}
	e.open = true
	e.opens++
	return nil
}

func (e *Engine) Run(op *rfcore.Operation, onEntryDone func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return ErrNotOpen
	}
	if op.Params == nil || op.Params.RxQueue == nil {
		return ErrBadParams
	}
	e.irq = onEntryDone
	e.posted = append(e.posted, op)
	e.sched.Start(op, e.now)
	return nil
}

func (e *Engine) Direct(cmd rfcore.DirectCommand) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return ErrNotOpen
	}
	e.directs = append(e.directs, cmd)
	switch cmd {
	case rfcore.CmdTrigger0:
		e.sched.Trigger(e.now)
	case rfcore.CmdStop:
		e.sched.Stop(e.now)
	case rfcore.CmdAbort:
		e.sched.Abort(e.now)
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sched.Abort(e.now)
	e.open = false
	return nil
}

// Advance moves the radio timer forward, firing due triggers.
func (e *Engine) Advance(ticks uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now += ticks
	e.sched.Advance(e.now)
}

func (e *Engine) Now() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Receive puts packet on the air on channel. If the running operation is
// listening there it fills the next receive entry, stamps the receive
// statistics and raises the entry-done interrupt before returning. It
// reports whether the packet was delivered; packets the radio would flush
// (empty, wrong channel, no free entry) are dropped.
func (e *Engine) Receive(channel uint8, packet []byte, rssi int8) bool {
	e.mu.Lock()
	op := e.sched.Current()
	if op == nil || op.Status() != rfcore.StatusActive || op.Channel != channel {
		e.mu.Unlock()
		return false
	}
	if len(packet) == 0 && op.Params.Config.AutoFlushEmpty {
		e.mu.Unlock()
		return false
	}

	stats := op.Output
	if len(packet) > rxqueue.MaxLength {
		if stats != nil {
			stats.NRxNok++
		}
		e.mu.Unlock()
		return false
	}
	entry, ok := op.Params.RxQueue.Acquire()
	if !ok {
		if stats != nil {
			stats.NRxBufFull++
		}
		e.mu.Unlock()
		return false
	}

	n := 0
	if op.Params.Config.IncludeLenByte {
		entry.Data[0] = byte(len(packet))
		n++
	}
	n += copy(entry.Data[n:], packet)
	if stats != nil {
		stats.NRxOk++
		stats.LastRSSI = rssi
		stats.Timestamp = e.now
	}
	entry.Commit(n)
	e.received++
	irq := e.irq
	e.mu.Unlock()

	// Interrupt context: outside the engine lock so the handler may issue
	// commands.
	if irq != nil {
		irq()
	}
	return true
}

// Current returns the operation being executed, or nil.
func (e *Engine) Current() *rfcore.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.Current()
}

func (e *Engine) Opens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens
}

func (e *Engine) Posted() []*rfcore.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*rfcore.Operation(nil), e.posted...)
}

func (e *Engine) Directs() []rfcore.DirectCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]rfcore.DirectCommand(nil), e.directs...)
}

func (e *Engine) Received() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.received
}
