// Package spiengine drives a radio coprocessor over SPI. Operation images are
// written into the coprocessor's memory and posted to it; it raises the
// interrupt line each time it finishes a receive entry.
package spiengine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hatstand/blesniffer/rfcore"
	"github.com/hatstand/blesniffer/rxqueue"
	"github.com/kidoman/embd"
	"go.uber.org/zap"
)

const (
	// Frame opcodes.
	OpWrite   = 0x02
	OpRead    = 0x03
	OpPost    = 0x10 // Run the operation at the given address
	OpDirect  = 0x11 // Execute a direct command
	OpSetup   = 0x12 // Lay out the receive entries
	OpReset   = 0x30
	OpVersion = 0x9f

	ProtocolVersion = 0x01

	// Coprocessor memory map. Images reference each other by RAMBase+addr.
	RAMBase     = 0x20000000
	OpBase      = 0x0100
	ParamsBase  = 0x0200
	OutputAddr  = 0x0300
	EntryBase   = 0x0400
	Stride      = 0x40
	EntryStride = 0x110

	// Receive entry layout: status, byte count, data.
	EntryHeaderSize = 2

	maxOps = len(rfcore.Chain{})
)

var (
	ErrVersion  = errors.New("unexpected coprocessor version")
	ErrNotOpen  = errors.New("engine not open")
	ErrTooLong  = errors.New("operation chain too long")
	ErrNoParams = errors.New("operation has no receive queue")
)

func opAddr(i int) uint16 {
	return OpBase + uint16(i)*Stride
}

func paramsAddr(i int) uint16 {
	return ParamsBase + uint16(i)*Stride
}

func entryAddr(i int) uint16 {
	return EntryBase + uint16(i)*EntryStride
}

// Pin is the part of embd.DigitalPin the engine uses for the interrupt line.
type Pin interface {
	Watch(edge embd.Edge, handler func(embd.DigitalPin)) error
	StopWatching() error
	Close() error
}

type Engine struct {
	bus embd.SPIBus
	// Rising edge when a receive entry is finished.
	irq Pin
	log *zap.Logger

	lock   sync.Mutex
	open   bool
	posted []*rfcore.Operation
	queue  *rxqueue.Queue
	output *rfcore.RxStats
	onDone func()
	// Coprocessor entry the next packet lands in.
	cur int
}

func New(bus embd.SPIBus, irq Pin, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{bus: bus, irq: irq, log: log}
}

func (e *Engine) Strobe(op byte) (byte, error) {
	data := []byte{op, 0x00}
	if err := e.bus.TransferAndReceiveData(data); err != nil {
		return 0, err
	}
	return data[1], nil
}

func (e *Engine) command(op byte, word uint32) error {
	buf := make([]byte, 7)
	buf[0] = op
	binary.LittleEndian.PutUint32(buf[3:], word)
	return e.bus.TransferAndReceiveData(buf)
}

func (e *Engine) WriteMem(addr uint16, data []byte) error {
	buf := make([]byte, 0, 3+len(data))
	buf = append(buf, OpWrite, byte(addr>>8), byte(addr))
	buf = append(buf, data...)
	return e.bus.TransferAndReceiveData(buf)
}

func (e *Engine) ReadMem(addr uint16, n int) ([]byte, error) {
	buf := make([]byte, 3+n)
	buf[0] = OpRead
	buf[1] = byte(addr >> 8)
	buf[2] = byte(addr)
	if err := e.bus.TransferAndReceiveData(buf); err != nil {
		return nil, err
	}
	return buf[3:], nil
}

func (e *Engine) Reset() error {
	_, err := e.Strobe(OpReset)
	return err
}

func (e *Engine) SelfTest() error {
	version, err := e.Strobe(OpVersion)
	if err != nil {
		return err
	}
	e.log.Debug("Coprocessor", zap.Uint8("version", version))
	if version != ProtocolVersion {
		return fmt.Errorf("%w: 0x%x", ErrVersion, version)
	}
	return nil
}

func (e *Engine) setup() error {
	buf := []byte{OpSetup, byte(EntryBase >> 8), byte(EntryBase & 0xff), rxqueue.NumEntries}
	return e.bus.TransferAndReceiveData(buf)
}

// Open resets the coprocessor, checks it speaks our protocol, lays out its
// receive entries and starts watching the interrupt line.
func (e *Engine) Open() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if err := e.Reset(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := e.SelfTest(); err != nil {
		return err
	}
	if err := e.setup(); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if err := e.irq.Watch(embd.EdgeRising, e.handleIRQ); err != nil {
		return fmt.Errorf("watch interrupt: %w", err)
	}
	e.cur = 0
	e.open = true
	return nil
}

// Run writes the chain starting at op into coprocessor memory and posts it.
func (e *Engine) Run(op *rfcore.Operation, onEntryDone func()) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.open {
		return ErrNotOpen
	}
	var ops []*rfcore.Operation
	for o := op; o != nil; o = o.Next {
		if len(ops) == maxOps {
			return ErrTooLong
		}
		if o.Params == nil || o.Params.RxQueue == nil {
			return ErrNoParams
		}
		ops = append(ops, o)
	}

	for i, o := range ops {
		addrs := rfcore.ImageAddrs{
			Params: RAMBase + uint32(paramsAddr(i)),
			Output: RAMBase + OutputAddr,
		}
		if o.Next != nil {
			addrs.Next = RAMBase + uint32(opAddr(i+1))
		}
		if err := e.WriteMem(paramsAddr(i), o.Params.MarshalImage(RAMBase+EntryBase)); err != nil {
			return err
		}
		if err := e.WriteMem(opAddr(i), o.MarshalImage(addrs)); err != nil {
			return err
		}
	}
	if err := e.WriteMem(OutputAddr, make([]byte, rfcore.StatsImageSize)); err != nil {
		return err
	}

	e.posted = ops
	e.queue = op.Params.RxQueue
	e.output = op.Output
	e.onDone = onEntryDone
	if err := e.command(OpPost, RAMBase+uint32(opAddr(0))); err != nil {
		return fmt.Errorf("post: %w", err)
	}
	e.log.Debug("Posted operation", zap.Uint8("channel", op.Channel), zap.Int("chain", len(ops)))
	return e.readStatus()
}

func (e *Engine) Direct(cmd rfcore.DirectCommand) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.open {
		return ErrNotOpen
	}
	if err := e.command(OpDirect, uint32(cmd)); err != nil {
		return fmt.Errorf("%v: %w", cmd, err)
	}
	return e.readStatus()
}

// SyncStatus copies the posted operations' statuses back to the host.
// Operations that end without finishing an entry are only seen through it.
func (e *Engine) SyncStatus() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.open {
		return ErrNotOpen
	}
	return e.readStatus()
}

// readStatus copies each posted operation's status back to the host.
func (e *Engine) readStatus() error {
	for i, o := range e.posted {
		b, err := e.ReadMem(opAddr(i)+rfcore.StatusOffset, 2)
		if err != nil {
			return err
		}
		s, err := rfcore.ParseStatus(b)
		if err != nil {
			return err
		}
		o.SetStatus(s)
	}
	return nil
}

func (e *Engine) handleIRQ(embd.DigitalPin) {
	delivered, err := e.receive()
	if err != nil {
		e.log.Warn("Failed to read receive entry", zap.Error(err))
		return
	}
	if delivered {
		e.lock.Lock()
		done := e.onDone
		e.lock.Unlock()
		if done != nil {
			done()
		}
	}
}

// receive moves the finished coprocessor entry into the host pool. It
// reports whether an entry was committed there.
func (e *Engine) receive() (bool, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.open || e.queue == nil {
		return false, nil
	}
	addr := entryAddr(e.cur)
	hdr, err := e.ReadMem(addr, EntryHeaderSize)
	if err != nil {
		return false, err
	}
	switch rxqueue.EntryStatus(hdr[0]) {
	case rxqueue.Finished:
	case rxqueue.Unfinished:
		// Cut short by a stop or an end trigger mid-packet.
		e.log.Debug("Discarding unfinished entry", zap.Int("entry", e.cur))
		return false, e.release(addr)
	default:
		// Pending, Active or Busy: the radio still owns it.
		return false, nil
	}
	data, err := e.ReadMem(addr+EntryHeaderSize, int(hdr[1]))
	if err != nil {
		return false, err
	}

	out, err := e.ReadMem(OutputAddr, rfcore.StatsImageSize)
	if err != nil {
		return false, err
	}
	if e.output != nil {
		if err := e.output.UnmarshalImage(out); err != nil {
			return false, err
		}
	}
	if err := e.readStatus(); err != nil {
		return false, err
	}

	// The host pool being full drops the packet, as the radio would.
	entry, ok := e.queue.Acquire()
	if ok {
		entry.Commit(copy(entry.Data, data))
	}

	if err := e.release(addr); err != nil {
		return false, err
	}
	return ok, nil
}

// release hands the entry at addr back to the radio and moves on to the next.
func (e *Engine) release(addr uint16) error {
	if err := e.WriteMem(addr, []byte{byte(rxqueue.Pending)}); err != nil {
		return err
	}
	e.cur = (e.cur + 1) % rxqueue.NumEntries
	return nil
}

func (e *Engine) Close() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.open {
		return nil
	}
	e.open = false
	e.posted = nil
	e.queue = nil
	e.onDone = nil
	if err := e.irq.StopWatching(); err != nil {
		e.log.Warn("Failed to stop watching interrupt", zap.Error(err))
	}
	if err := e.command(OpDirect, uint32(rfcore.CmdAbort)); err != nil {
		e.log.Warn("Failed to abort", zap.Error(err))
	}
	return e.Reset()
}
