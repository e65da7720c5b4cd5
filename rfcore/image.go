package rfcore

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sizes of the structures as laid out in radio memory.
const (
	OperationImageSize = 32
	ParamsImageSize    = 20
	StatsImageSize     = 12

	// Offset of the status field within an operation image.
	StatusOffset = 2
)

var ErrShortImage = errors.New("image too short")

var le = binary.LittleEndian

// ImageAddrs holds the radio memory addresses an operation image points at.
// Zero means no link.
type ImageAddrs struct {
	Next   uint32
	Params uint32
	Output uint32
}

func boolBit(b bool, shift uint) uint8 {
	if b {
		return 1 << shift
	}
	return 0
}

func (t Trigger) pack() uint8 {
	return uint8(t.Type)&0x0f |
		boolBit(t.EnaCmd, 4) |
		(t.TriggerNo&0x03)<<5 |
		boolBit(t.PastTrig, 7)
}

func (c RxConfig) pack() uint8 {
	return boolBit(c.AutoFlushIgnored, 0) |
		boolBit(c.AutoFlushCRCErr, 1) |
		boolBit(c.AutoFlushEmpty, 2) |
		boolBit(c.IncludeLenByte, 3) |
		boolBit(c.IncludeCRC, 4) |
		boolBit(c.AppendRSSI, 5) |
		boolBit(c.AppendStatus, 6) |
		boolBit(c.AppendTimestamp, 7)
}

// MarshalImage encodes the operation as the engine reads it from memory.
func (o *Operation) MarshalImage(addrs ImageAddrs) []byte {
	b := make([]byte, OperationImageSize)
	le.PutUint16(b[0:], o.CommandNo)
	le.PutUint16(b[StatusOffset:], uint16(o.Status()))
	le.PutUint32(b[4:], addrs.Next)
	le.PutUint32(b[8:], o.StartTime)
	b[12] = o.StartTrigger.pack()
	b[13] = uint8(o.Condition.Rule)&0x0f | o.Condition.NSkip<<4
	b[14] = o.Channel
	b[15] = o.Whitening.Init&0x7f | boolBit(o.Whitening.Override, 7)
	b[16] = uint8(o.PHY.Main)&0x03 | o.PHY.Coding<<2
	// Range delay, tx power and tx20 power stay zero for receive.
	le.PutUint32(b[20:], addrs.Params)
	le.PutUint32(b[24:], addrs.Output)
	return b
}

// MarshalImage encodes the receive parameters; rxq is the radio memory
// address of the data queue.
func (p *RxParams) MarshalImage(rxq uint32) []byte {
	b := make([]byte, ParamsImageSize)
	le.PutUint32(b[0:], rxq)
	b[4] = p.Config.pack()
	b[5] = boolBit(p.Repeat, 0)
	le.PutUint32(b[8:], p.AccessAddress)
	b[12] = uint8(p.CRCInit)
	b[13] = uint8(p.CRCInit >> 8)
	b[14] = uint8(p.CRCInit >> 16)
	b[15] = p.EndTrigger.pack()
	le.PutUint32(b[16:], p.EndTime)
	return b
}

// UnmarshalImage decodes the output block the engine writes after each
// received packet.
func (s *RxStats) UnmarshalImage(b []byte) error {
	if len(b) < StatsImageSize {
		return fmt.Errorf("%w: stats %d bytes", ErrShortImage, len(b))
	}
	s.NRxOk = le.Uint16(b[0:])
	s.NRxNok = le.Uint16(b[2:])
	s.NRxBufFull = le.Uint16(b[4:])
	s.LastRSSI = int8(b[6])
	s.Timestamp = le.Uint32(b[8:])
	return nil
}

// ParseStatus decodes a status field read back from an operation image.
func ParseStatus(b []byte) (Status, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("%w: status %d bytes", ErrShortImage, len(b))
	}
	return Status(le.Uint16(b)), nil
}
