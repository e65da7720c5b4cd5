package blesniffer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hatstand/blesniffer/rfcore"
	"github.com/hatstand/blesniffer/rxqueue"
	"github.com/hatstand/blesniffer/sim"
	"github.com/prometheus/client_golang/prometheus/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDispatch(t *testing.T) {
	Convey("No handler", t, WithSession(t, func(e *sim.Engine, s *Session, m *Metrics) {
		So(s.RecvSingleChannel(rfcore.PHY1M, 10, rfcore.AdvAccessAddress, rfcore.AdvCRCInit, rfcore.Infinite, nil), ShouldBeNil)
		for i := 0; i < 3; i++ {
			So(e.Receive(10, []byte{1, 2, 3}, -50), ShouldBeTrue)
		}
		So(testutil.ToFloat64(m.dropped), ShouldEqual, 3)
		So(s.queue.Current().Status(), ShouldEqual, rxqueue.Pending)
	}))

	Convey("Unfinished entry", t, WithSession(t, func(e *sim.Engine, s *Session, m *Metrics) {
		r := &recorder{}
		So(s.RecvSingleChannel(rfcore.PHY1M, 10, rfcore.AdvAccessAddress, rfcore.AdvCRCInit, rfcore.Infinite, r), ShouldBeNil)
		s.dispatch()
		So(r.frames, ShouldBeEmpty)
		So(testutil.ToFloat64(m.dropped), ShouldEqual, 0)

		So(e.Receive(10, []byte{7}, -50), ShouldBeTrue)
		So(len(r.frames), ShouldEqual, 1)
	}))

	Convey("Interrupt after stop", t, WithSession(t, func(e *sim.Engine, s *Session, m *Metrics) {
		r := &recorder{}
		So(s.RecvSingleChannel(rfcore.PHY1M, 10, rfcore.AdvAccessAddress, rfcore.AdvCRCInit, rfcore.Infinite, r), ShouldBeNil)
		entry, ok := s.queue.Acquire()
		So(ok, ShouldBeTrue)
		entry.Data[0] = 1
		entry.Commit(2)
		So(s.Stop(), ShouldBeNil)

		s.dispatch()
		So(r.frames, ShouldBeEmpty)
		So(testutil.ToFloat64(m.dropped), ShouldEqual, 1)
		So(entry.Status(), ShouldEqual, rxqueue.Pending)
	}))

	Convey("Length byte past the entry", t, WithSession(t, func(e *sim.Engine, s *Session, m *Metrics) {
		r := &recorder{}
		So(s.RecvSingleChannel(rfcore.PHY1M, 10, rfcore.AdvAccessAddress, rfcore.AdvCRCInit, rfcore.Infinite, r), ShouldBeNil)
		entry, _ := s.queue.Acquire()
		entry.Data[0] = 200
		entry.Data[1] = 0xaa
		entry.Commit(2)

		s.dispatch()
		So(len(r.frames), ShouldEqual, 1)
		So(r.frames[0].Length, ShouldEqual, 1)
		So(r.frames[0].Payload, ShouldResemble, []byte{0xaa})
	}))

	Convey("HandlerFunc", t, WithSession(t, func(e *sim.Engine, s *Session, m *Metrics) {
		var got []uint8
		h := HandlerFunc(func(f Frame) { got = append(got, f.Channel) })
		So(s.RecvAdvertisingChain(4000, h), ShouldBeNil)
		So(e.Receive(37, []byte{1}, -50), ShouldBeTrue)
		So(got, ShouldResemble, []uint8{37})
	}))
}

func TestResolveChannel(t *testing.T) {
	Convey("Advertising chain", t, func() {
		c, err := rfcore.BuildAdvertisingChain(nil, nil, 4000)
		So(err, ShouldBeNil)
		tune := advChain(c)

		statuses := []struct {
			s    [3]rfcore.Status
			want uint8
		}{
			{[3]rfcore.Status{rfcore.StatusIdle, rfcore.StatusIdle, rfcore.StatusIdle}, 37},
			{[3]rfcore.Status{rfcore.StatusActive, rfcore.StatusIdle, rfcore.StatusIdle}, 37},
			{[3]rfcore.Status{rfcore.StatusDoneOK, rfcore.StatusPending, rfcore.StatusIdle}, 38},
			{[3]rfcore.Status{rfcore.StatusDoneOK, rfcore.StatusActive, rfcore.StatusIdle}, 38},
			{[3]rfcore.Status{rfcore.StatusDoneOK, rfcore.StatusDoneOK, rfcore.StatusActive}, 39},
			{[3]rfcore.Status{rfcore.StatusDoneOK, rfcore.StatusDoneOK, rfcore.StatusDoneOK}, 39},
			{[3]rfcore.Status{rfcore.StatusDoneStopped, rfcore.StatusIdle, rfcore.StatusIdle}, 38},
		}
		for _, tc := range statuses {
			for i, st := range tc.s {
				c[i].SetStatus(st)
			}
			So(tune.resolveChannel(), ShouldEqual, tc.want)
		}
	})

	Convey("Single channel", t, func() {
		So(singleChannel(17).resolveChannel(), ShouldEqual, 17)
	})
}

func TestErrno(t *testing.T) {
	Convey("Errno", t, func() {
		So(Errno(nil), ShouldEqual, 0)
		So(Errno(fmt.Errorf("%w: open", ErrResourceUnavailable)), ShouldEqual, -19)
		So(Errno(ErrOutOfMemory), ShouldEqual, -12)
		So(Errno(ErrInvalidArgument), ShouldEqual, -22)
		So(Errno(ErrInvalidState), ShouldEqual, -22)
		So(Errno(errors.New("other")), ShouldEqual, -22)
	})
}
