// Package rfcore describes the receive operations executed by the radio
// engine: the command descriptors, their start and end triggers, and how a
// chain of them advances without software involvement.
package rfcore

import (
	"sync/atomic"

	"github.com/hatstand/blesniffer/rxqueue"
)

const (
	// BLE5 generic receive.
	CmdBLE5GenericRx = 0x1829

	NumChannels = 40

	Adv37 = 37
	Adv38 = 38
	Adv39 = 39

	AdvAccessAddress = 0x8E89BED6
	AdvCRCInit       = 0x555555

	// Timeout value meaning listen until stopped.
	Infinite = 0xFFFFFFFF

	// Ticks the engine needs to tear down one operation and set up the next.
	SwitchLatency = 150

	// The radio timer runs at 4 MHz.
	ClockDivisor = 4
)

type Status uint16

const (
	StatusIdle          Status = 0x0000
	StatusPending       Status = 0x0001
	StatusActive        Status = 0x0002
	StatusSkipped       Status = 0x0003
	StatusDoneOK        Status = 0x1400
	StatusDoneRxTimeout Status = 0x1401
	StatusDoneEnded     Status = 0x1406
	StatusDoneAbort     Status = 0x1407
	StatusDoneStopped   Status = 0x1408
	StatusErrorPar      Status = 0x1800
)

// Done reports whether the operation has finished, successfully or not.
func (s Status) Done() bool {
	return s > StatusActive
}

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusPending:
		return "PENDING"
	case StatusActive:
		return "ACTIVE"
	case StatusSkipped:
		return "SKIPPED"
	case StatusDoneOK:
		return "DONE_OK"
	case StatusDoneRxTimeout:
		return "DONE_RXTIMEOUT"
	case StatusDoneEnded:
		return "DONE_ENDED"
	case StatusDoneAbort:
		return "DONE_ABORT"
	case StatusDoneStopped:
		return "DONE_STOPPED"
	case StatusErrorPar:
		return "ERROR_PAR"
	default:
		return "?"
	}
}

type PHYMode uint8

const (
	PHY1M PHYMode = iota
	PHY2M
	PHYCoded
)

func (p PHYMode) String() string {
	switch p {
	case PHY1M:
		return "1M"
	case PHY2M:
		return "2M"
	case PHYCoded:
		return "CODED"
	default:
		return "?"
	}
}

type PHY struct {
	Main   PHYMode
	Coding uint8
}

type Whitening struct {
	Init     uint8
	Override bool
}

type ConditionRule uint8

const (
	// Run the next operation.
	CondAlways ConditionRule = 0
	// End the chain here.
	CondNever ConditionRule = 1
)

type Condition struct {
	Rule  ConditionRule
	NSkip uint8
}

type RxConfig struct {
	AutoFlushIgnored bool
	AutoFlushCRCErr  bool
	AutoFlushEmpty   bool
	IncludeLenByte   bool
	IncludeCRC       bool
	AppendRSSI       bool
	AppendStatus     bool
	AppendTimestamp  bool
}

type RxParams struct {
	RxQueue       *rxqueue.Queue
	Config        RxConfig
	Repeat        bool
	AccessAddress uint32
	// 24 bits.
	CRCInit    uint32
	EndTrigger Trigger
	EndTime    uint32
}

// RxStats is written by the engine before it signals an entry done and read
// by the handler of that signal.
type RxStats struct {
	NRxOk      uint16
	NRxNok     uint16
	NRxBufFull uint16
	LastRSSI   int8
	// Radio timer ticks.
	Timestamp uint32
}

type Operation struct {
	CommandNo    uint16
	status       atomic.Uint32
	Next         *Operation
	StartTime    uint32
	StartTrigger Trigger
	Condition    Condition
	Channel      uint8
	Whitening    Whitening
	PHY          PHY
	Params       *RxParams
	Output       *RxStats
}

// Status is written by the engine and may be read from any goroutine.
func (o *Operation) Status() Status {
	return Status(o.status.Load())
}

func (o *Operation) SetStatus(s Status) {
	o.status.Store(uint32(s))
}

// Chain is an ordered run of operations linked through Next.
type Chain [3]*Operation

type DirectCommand uint32

const (
	CmdAbort    DirectCommand = 0x04010001
	CmdStop     DirectCommand = 0x04020001
	CmdTrigger0 DirectCommand = 0x04040001
)

func (c DirectCommand) String() string {
	switch c {
	case CmdAbort:
		return "ABORT"
	case CmdStop:
		return "STOP"
	case CmdTrigger0:
		return "TRIGGER0"
	default:
		return "?"
	}
}
