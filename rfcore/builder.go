package rfcore

import (
	"errors"
	"fmt"

	"github.com/hatstand/blesniffer/rxqueue"
)

var (
	ErrChannelRange = errors.New("channel out of range")
	ErrHopInterval  = errors.New("hop interval must exceed switch latency")
)

func sniffConfig() RxConfig {
	return RxConfig{
		AutoFlushIgnored: true,
		AutoFlushCRCErr:  true,
		AutoFlushEmpty:   true,
		IncludeLenByte:   true,
	}
}

// BuildSingleChannel returns a repeating receive on channel. A timeout of
// Infinite listens until stopped, anything else is the absolute radio time
// at which reception ends. That time must lie within MaxLead ticks of the
// radio timer when the operation starts, or it has already passed.
func BuildSingleChannel(q *rxqueue.Queue, stats *RxStats, phy PHYMode, channel uint8,
	accessAddress, crcInit, timeout uint32) (*Operation, error) {
	if channel >= NumChannels {
		return nil, fmt.Errorf("%w: %d", ErrChannelRange, channel)
	}

	params := &RxParams{
		RxQueue:       q,
		Config:        sniffConfig(),
		Repeat:        true,
		AccessAddress: accessAddress,
		CRCInit:       crcInit & 0xffffff,
	}
	if timeout != Infinite {
		params.EndTrigger.Type = TrigAbsTime
		params.EndTime = timeout
	} else {
		params.EndTrigger.Type = TrigNever
		params.EndTime = 0
	}

	return &Operation{
		CommandNo:    CmdBLE5GenericRx,
		StartTrigger: Trigger{Type: TrigNow, PastTrig: true},
		Channel:      channel,
		Whitening:    Whitening{Init: 0x40 + channel},
		PHY:          PHY{Main: phy},
		Params:       params,
		Output:       stats,
	}, nil
}

// BuildAdvertisingChain returns receives on 37, 38 and 39 linked in that
// order. 37 runs until a CmdTrigger0, 38 for hopTicks less the switch
// latency after that and 39 for hopTicks after 38, then the chain ends.
func BuildAdvertisingChain(q *rxqueue.Queue, stats *RxStats, hopTicks uint32) (Chain, error) {
	if hopTicks <= SwitchLatency {
		return Chain{}, fmt.Errorf("%w: %d ticks", ErrHopInterval, hopTicks)
	}

	var c Chain
	for i, ch := range []uint8{Adv37, Adv38, Adv39} {
		c[i] = &Operation{
			CommandNo:    CmdBLE5GenericRx,
			StartTrigger: Trigger{Type: TrigNow, PastTrig: true},
			Condition:    Condition{Rule: CondAlways},
			Channel:      ch,
			PHY:          PHY{Main: PHY1M},
			Params: &RxParams{
				RxQueue:       q,
				Config:        sniffConfig(),
				Repeat:        true,
				AccessAddress: AdvAccessAddress,
				CRCInit:       AdvCRCInit,
				EndTrigger:    Trigger{PastTrig: true},
			},
			Output: stats,
		}
	}

	c[0].Next = c[1]
	c[0].Params.EndTrigger.Type = TrigNever
	c[0].Params.EndTrigger.EnaCmd = true

	c[1].Next = c[2]
	c[1].Params.EndTrigger.Type = TrigRelPrevEnd
	c[1].Params.EndTime = hopTicks - SwitchLatency

	c[2].Condition.Rule = CondNever
	c[2].Params.EndTrigger.Type = TrigRelPrevEnd
	c[2].Params.EndTime = hopTicks

	return c, nil
}
