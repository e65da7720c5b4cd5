package rfcore

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestOperationImage(t *testing.T) {
	Convey("Chain head", t, func() {
		c, _ := BuildAdvertisingChain(nil, &RxStats{}, 4000)
		b := c[0].MarshalImage(ImageAddrs{Next: 0x20000140, Params: 0x20000200, Output: 0x20000300})
		So(len(b), ShouldEqual, OperationImageSize)
		So(b[0:2], ShouldResemble, []byte{0x29, 0x18})
		So(b[2:4], ShouldResemble, []byte{0x00, 0x00})
		So(b[4:8], ShouldResemble, []byte{0x40, 0x01, 0x00, 0x20})
		// TRIG_NOW with pastTrig.
		So(b[12], ShouldEqual, 0x80)
		So(b[13], ShouldEqual, 0x00)
		So(b[14], ShouldEqual, 37)
		So(b[16], ShouldEqual, 0x00)
		So(b[20:24], ShouldResemble, []byte{0x00, 0x02, 0x00, 0x20})
		So(b[24:28], ShouldResemble, []byte{0x00, 0x03, 0x00, 0x20})
	})

	Convey("Chain tail", t, func() {
		c, _ := BuildAdvertisingChain(nil, &RxStats{}, 4000)
		c[2].SetStatus(StatusActive)
		b := c[2].MarshalImage(ImageAddrs{})
		So(b[2:4], ShouldResemble, []byte{0x02, 0x00})
		So(b[4:8], ShouldResemble, []byte{0, 0, 0, 0})
		So(b[13], ShouldEqual, uint8(CondNever))
	})

	Convey("Single channel whitening", t, func() {
		op, _ := BuildSingleChannel(nil, nil, PHY2M, 10, AdvAccessAddress, AdvCRCInit, Infinite)
		b := op.MarshalImage(ImageAddrs{})
		So(b[15], ShouldEqual, 0x4a)
		So(b[16], ShouldEqual, 0x01)
	})
}

func TestParamsImage(t *testing.T) {
	Convey("Advertising params", t, func() {
		c, _ := BuildAdvertisingChain(nil, &RxStats{}, 4000)

		b := c[0].Params.MarshalImage(0x20000400)
		So(len(b), ShouldEqual, ParamsImageSize)
		So(b[0:4], ShouldResemble, []byte{0x00, 0x04, 0x00, 0x20})
		// Auto flush x3 and length byte.
		So(b[4], ShouldEqual, 0x0f)
		So(b[5], ShouldEqual, 0x01)
		So(b[8:12], ShouldResemble, []byte{0xd6, 0xbe, 0x89, 0x8e})
		So(b[12:15], ShouldResemble, []byte{0x55, 0x55, 0x55})
		// TRIG_NEVER, bEnaCmd, pastTrig.
		So(b[15], ShouldEqual, 0x91)

		b = c[1].Params.MarshalImage(0)
		So(b[15], ShouldEqual, 0x87)
		So(b[16:20], ShouldResemble, []byte{0x0a, 0x0f, 0x00, 0x00})
	})
}

func TestStatsImage(t *testing.T) {
	Convey("Decode", t, func() {
		var s RxStats
		err := s.UnmarshalImage([]byte{3, 0, 1, 0, 0, 0, 0xc4, 0, 0x40, 0x42, 0x0f, 0x00})
		So(err, ShouldBeNil)
		So(s.NRxOk, ShouldEqual, 3)
		So(s.NRxNok, ShouldEqual, 1)
		So(s.LastRSSI, ShouldEqual, -60)
		So(s.Timestamp, ShouldEqual, 1000000)
	})

	Convey("Short", t, func() {
		var s RxStats
		So(errors.Is(s.UnmarshalImage(make([]byte, 4)), ErrShortImage), ShouldBeTrue)
	})

	Convey("Status", t, func() {
		st, err := ParseStatus([]byte{0x08, 0x14})
		So(err, ShouldBeNil)
		So(st, ShouldEqual, StatusDoneStopped)
		So(st.Done(), ShouldBeTrue)
		So(StatusActive.Done(), ShouldBeFalse)
	})
}
