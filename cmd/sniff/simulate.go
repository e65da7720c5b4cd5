package main

import (
	"context"
	"time"

	"github.com/hatstand/blesniffer/rfcore"
	"github.com/hatstand/blesniffer/sim"
)

// ADV_NONCONN_IND from c0:ff:ee:00:00:01 carrying only a flags AD structure.
var fakeAdvertisement = []byte{
	0x02, 0x09,
	0x01, 0x00, 0x00, 0xee, 0xff, 0xc0,
	0x02, 0x01, 0x06,
}

// simulate runs the virtual radio clock in real time and puts an
// advertisement on the air every period on whichever channel is listening.
func simulate(ctx context.Context, e *sim.Engine, period time.Duration) {
	const step = time.Millisecond
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	ticksPerStep := uint32(step.Microseconds()) * rfcore.ClockDivisor
	var elapsed time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Advance(ticksPerStep)
			elapsed += step
			if elapsed < period {
				continue
			}
			elapsed = 0
			if op := e.Current(); op != nil {
				e.Receive(op.Channel, fakeAdvertisement, -60)
			}
		}
	}
}
