// Package blesniffer runs a radio in passive receive for a BLE sniffer: either
// continuously on one channel, or as a chain hopping over the three
// advertising channels that the radio executes on its own.
package blesniffer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hatstand/blesniffer/rfcore"
	"github.com/hatstand/blesniffer/rxqueue"
	"go.uber.org/zap"
)

type State int

const (
	StateUnconfigured State = iota
	StateIdle
	StateReceiving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "UNCONFIGURED"
	case StateIdle:
		return "IDLE"
	case StateReceiving:
		return "RECEIVING"
	case StateClosed:
		return "CLOSED"
	default:
		return "?"
	}
}

type Mode int

const (
	ModeIdle Mode = iota
	ModeSingle
	ModeChain
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeSingle:
		return "SINGLE"
	case ModeChain:
		return "CHAIN"
	default:
		return "?"
	}
}

type Option func(*Session)

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithRxBuffer supplies the memory the receive entries are laid out in
// instead of allocating it on Init. The engine may require it to be placed
// in memory it can reach.
func WithRxBuffer(buf []byte) Option {
	return func(s *Session) {
		s.rxBuf = buf
	}
}

// Session owns the radio and the receive buffers for one receive at a time.
// Its methods are safe to call from multiple goroutines; frames are delivered
// from the engine's interrupt context.
type Session struct {
	engine  Engine
	log     *zap.Logger
	metrics *Metrics
	rxBuf   []byte

	mu    sync.Mutex
	state State
	queue *rxqueue.Queue
	// Written by the engine, read by dispatch.
	stats  rfcore.RxStats
	active atomic.Pointer[receive]
}

func NewSession(engine Engine, opts ...Option) *Session {
	s := &Session{
		engine: engine,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init opens the radio and sets up the receive buffers. It does nothing if
// the session is already configured.
func (s *Session) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StateReceiving:
		return nil
	case StateClosed:
		return fmt.Errorf("%w: session closed", ErrInvalidState)
	}

	if err := s.engine.Open(); err != nil {
		return fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}

	buf := s.rxBuf
	if buf == nil {
		buf = make([]byte, rxqueue.BufferSize(rxqueue.NumEntries, rxqueue.MaxLength))
	}
	q, err := rxqueue.Define(buf, rxqueue.NumEntries, rxqueue.MaxLength)
	if err != nil {
		if cerr := s.engine.Close(); cerr != nil {
			s.log.Warn("Failed to close radio", zap.Error(cerr))
		}
		return fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}

	s.queue = q
	s.state = StateIdle
	s.log.Debug("Radio configured", zap.Int("entries", q.Len()))
	return nil
}

func (s *Session) requireIdle(op string) error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, s.state)
	}
	return nil
}

func (s *Session) requireConfigured(op string) error {
	if s.state != StateIdle && s.state != StateReceiving {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, s.state)
	}
	return nil
}

// RecvSingleChannel receives continuously on channel, until timeout (radio
// ticks, absolute) or until stopped if timeout is rfcore.Infinite.
func (s *Session) RecvSingleChannel(phy rfcore.PHYMode, channel uint8, accessAddress, crcInit, timeout uint32, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireIdle("receive"); err != nil {
		return err
	}
	op, err := rfcore.BuildSingleChannel(s.queue, &s.stats, phy, channel, accessAddress, crcInit, timeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	s.log.Debug("Receiving on channel",
		zap.Uint8("channel", channel),
		zap.Stringer("phy", phy),
		zap.Uint32("access_address", accessAddress),
		zap.Uint32("timeout", timeout))
	return s.run(op, &receive{handler: h, tuning: singleChannel(channel), mode: ModeSingle, last: op})
}

// RecvAdvertisingChain scans 37, then 38 and 39 for hopTicks each once
// TriggerHop moves it off 37. The chain ends after 39.
func (s *Session) RecvAdvertisingChain(hopTicks uint32, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireIdle("receive"); err != nil {
		return err
	}
	chain, err := rfcore.BuildAdvertisingChain(s.queue, &s.stats, hopTicks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	s.log.Debug("Receiving on advertising chain", zap.Uint32("hop_ticks", hopTicks))
	return s.run(chain[0], &receive{handler: h, tuning: advChain(chain), mode: ModeChain, last: chain[2]})
}

func (s *Session) run(op *rfcore.Operation, rx *receive) error {
	// Published before the engine can raise its first interrupt.
	s.active.Store(rx)
	if err := s.engine.Run(op, s.dispatch); err != nil {
		s.active.Store(nil)
		return fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	s.state = StateReceiving
	return nil
}

// TriggerHop moves a running advertising chain off channel 37.
func (s *Session) TriggerHop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReceiving {
		return fmt.Errorf("%w: hop while %s", ErrInvalidState, s.state)
	}
	if err := s.syncStatus(); err != nil {
		return fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	chain, ok := s.active.Load().tuning.(advChain)
	if !ok {
		return fmt.Errorf("%w: hop without advertising chain", ErrInvalidState)
	}
	if ch := chain.resolveChannel(); ch != rfcore.Adv37 {
		return fmt.Errorf("%w: hop on channel %d", ErrInvalidState, ch)
	}

	if err := s.engine.Direct(rfcore.CmdTrigger0); err != nil {
		return fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	s.metrics.hopTriggered()
	return nil
}

// Stop gracefully ends whatever the radio is doing.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigured("stop"); err != nil {
		return err
	}
	return s.stop()
}

func (s *Session) stop() error {
	if s.state != StateReceiving {
		return nil
	}
	if err := s.engine.Direct(rfcore.CmdStop); err != nil {
		return fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	s.active.Store(nil)
	s.state = StateIdle
	s.log.Debug("Radio stopped")
	return nil
}

// Close stops the radio and releases it. The session cannot be used again.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigured("close"); err != nil {
		return err
	}
	if err := s.stop(); err != nil {
		s.log.Warn("Failed to stop radio before close", zap.Error(err))
	}
	s.active.Store(nil)
	s.state = StateClosed
	if err := s.engine.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	s.log.Debug("Radio closed")
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReceiving {
		return ModeIdle
	}
	return s.active.Load().mode
}

// Channel returns the channel the radio is currently receiving on.
func (s *Session) Channel() (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReceiving {
		return 0, false
	}
	if err := s.syncStatus(); err != nil {
		s.log.Warn("Failed to read operation status", zap.Error(err))
	}
	return s.active.Load().tuning.resolveChannel(), true
}

// Done reports whether the radio has finished the current receive on its
// own, such as at the end of an advertising chain or on a receive timeout.
// The session stays receiving until Stop.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReceiving {
		return false
	}
	if err := s.syncStatus(); err != nil {
		s.log.Warn("Failed to read operation status", zap.Error(err))
	}
	return s.active.Load().last.Status().Done()
}

// syncStatus refreshes operation statuses held by the engine, if it holds
// any.
func (s *Session) syncStatus() error {
	if e, ok := s.engine.(StatusSyncer); ok {
		return e.SyncStatus()
	}
	return nil
}
