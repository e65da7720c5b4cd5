package sim

import (
	"errors"
	"testing"

	"github.com/hatstand/blesniffer/rfcore"
	"github.com/hatstand/blesniffer/rxqueue"
	. "github.com/smartystreets/goconvey/convey"
)

func newQueue() *rxqueue.Queue {
	q, err := rxqueue.Define(make([]byte, rxqueue.BufferSize(rxqueue.NumEntries, rxqueue.MaxLength)),
		rxqueue.NumEntries, rxqueue.MaxLength)
	if err != nil {
		panic(err)
	}
	return q
}

func TestLifecycle(t *testing.T) {
	Convey("Not open", t, func() {
		e := New()
		op, _ := rfcore.BuildSingleChannel(newQueue(), nil, rfcore.PHY1M, 5, rfcore.AdvAccessAddress, rfcore.AdvCRCInit, rfcore.Infinite)
		So(e.Run(op, nil), ShouldEqual, ErrNotOpen)
		So(e.Direct(rfcore.CmdStop), ShouldEqual, ErrNotOpen)
	})

	Convey("Open failure", t, func() {
		e := New()
		boom := errors.New("boom")
		e.FailOpen(boom)
		So(e.Open(), ShouldEqual, boom)
		So(e.Opens(), ShouldEqual, 0)
	})

	Convey("No queue", t, func() {
		e := New()
		So(e.Open(), ShouldBeNil)
		op, _ := rfcore.BuildSingleChannel(nil, nil, rfcore.PHY1M, 5, rfcore.AdvAccessAddress, rfcore.AdvCRCInit, rfcore.Infinite)
		So(e.Run(op, nil), ShouldEqual, ErrBadParams)
	})
}

func TestReceive(t *testing.T) {
	Convey("Single channel", t, func() {
		e := New()
		So(e.Open(), ShouldBeNil)
		q := newQueue()
		stats := &rfcore.RxStats{}
		op, _ := rfcore.BuildSingleChannel(q, stats, rfcore.PHY1M, 5, rfcore.AdvAccessAddress, rfcore.AdvCRCInit, rfcore.Infinite)

		irqs := 0
		So(e.Run(op, func() { irqs++ }), ShouldBeNil)
		e.Advance(400)

		So(e.Receive(5, []byte{1, 2, 3}, -70), ShouldBeTrue)
		So(irqs, ShouldEqual, 1)
		So(q.Current().Status(), ShouldEqual, rxqueue.Finished)
		So(q.Current().Bytes(), ShouldResemble, []byte{3, 1, 2, 3})
		So(stats.Timestamp, ShouldEqual, 400)
		So(stats.LastRSSI, ShouldEqual, -70)
		So(stats.NRxOk, ShouldEqual, 1)

		Convey("Other channels are not heard", func() {
			So(e.Receive(6, []byte{1}, -70), ShouldBeFalse)
		})

		Convey("Empty packets are flushed", func() {
			So(e.Receive(5, nil, -70), ShouldBeFalse)
		})

		Convey("Full pool drops", func() {
			So(e.Receive(5, []byte{4}, -70), ShouldBeTrue)
			So(e.Receive(5, []byte{5}, -70), ShouldBeFalse)
			So(stats.NRxBufFull, ShouldEqual, 1)
			So(irqs, ShouldEqual, 2)
		})

		Convey("Stop", func() {
			So(e.Direct(rfcore.CmdStop), ShouldBeNil)
			So(op.Status(), ShouldEqual, rfcore.StatusDoneStopped)
			So(e.Receive(5, []byte{1}, -70), ShouldBeFalse)
			So(e.Directs(), ShouldResemble, []rfcore.DirectCommand{rfcore.CmdStop})
		})
	})

	Convey("Advertising chain hops on its own", t, func() {
		e := New()
		So(e.Open(), ShouldBeNil)
		c, _ := rfcore.BuildAdvertisingChain(newQueue(), &rfcore.RxStats{}, 1000)
		So(e.Run(c[0], nil), ShouldBeNil)
		So(e.Posted(), ShouldResemble, []*rfcore.Operation{c[0]})

		So(e.Current(), ShouldPointTo, c[0])
		e.Advance(1000000)
		So(e.Current(), ShouldPointTo, c[0])

		So(e.Direct(rfcore.CmdTrigger0), ShouldBeNil)
		So(e.Current(), ShouldPointTo, c[1])
		e.Advance(850)
		So(e.Current(), ShouldPointTo, c[2])
		e.Advance(1000)
		So(e.Current(), ShouldBeNil)
		So(c[2].Status(), ShouldEqual, rfcore.StatusDoneOK)
	})
}
