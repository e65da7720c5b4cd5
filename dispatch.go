package blesniffer

import (
	"github.com/hatstand/blesniffer/rfcore"
	"github.com/hatstand/blesniffer/rxqueue"
)

// Frame is one received packet.
type Frame struct {
	// Payload aliases the receive buffer and is only valid until HandleFrame
	// returns. Copy it to keep it.
	Payload []byte
	// Microseconds on the radio timer.
	Timestamp uint32
	RSSI      int8
	Channel   uint8
	Length    uint8
}

// Handler receives frames from the radio's interrupt context. HandleFrame
// must return promptly and must not block: reception stalls until it does.
type Handler interface {
	HandleFrame(Frame)
}

type HandlerFunc func(Frame)

func (f HandlerFunc) HandleFrame(frame Frame) {
	f(frame)
}

// tuning says how the channel of a delivered packet is found.
type tuning interface {
	resolveChannel() uint8
}

type singleChannel uint8

func (c singleChannel) resolveChannel() uint8 {
	return uint8(c)
}

// advChain has no per-packet channel tag, so the channel is whichever chain
// operation has not finished yet. Assumes statuses only move forward and at
// most one operation is active.
type advChain rfcore.Chain

func (c advChain) resolveChannel() uint8 {
	if c[0].Status() <= rfcore.StatusActive {
		return rfcore.Adv37
	}
	if c[1].Status() <= rfcore.StatusActive {
		return rfcore.Adv38
	}
	return rfcore.Adv39
}

// receive is the immutable description of the receive in progress, published
// to the interrupt handler.
type receive struct {
	handler Handler
	tuning  tuning
	mode    Mode
	// The operation the radio stops after.
	last *rfcore.Operation
}

// dispatch handles one entry-done interrupt.
func (s *Session) dispatch() {
	e := s.queue.Current()
	if e.Status() != rxqueue.Finished {
		return
	}
	defer s.queue.Next()

	rx := s.active.Load()
	if rx == nil || rx.handler == nil {
		s.metrics.frameDropped()
		return
	}

	// Byte 0 is the length byte, the packet follows.
	data := e.Bytes()
	if len(data) < 1 {
		return
	}
	n := int(data[0])
	if n > len(data)-1 {
		n = len(data) - 1
	}

	frame := Frame{
		Payload:   data[1 : 1+n],
		Timestamp: s.stats.Timestamp / rfcore.ClockDivisor,
		RSSI:      s.stats.LastRSSI,
		Channel:   rx.tuning.resolveChannel(),
		Length:    uint8(n),
	}
	rx.handler.HandleFrame(frame)
	s.metrics.frameDispatched(frame.Channel)
}
