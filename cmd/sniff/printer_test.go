package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hatstand/blesniffer"
	"github.com/hatstand/blesniffer/rfcore"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPrinter(t *testing.T) {
	Convey("Print", t, func() {
		var buf bytes.Buffer
		p := newPrinter(&buf, "1M", time.Minute)
		f := blesniffer.Frame{
			Payload:   []byte{0x02, 0x01, 0x06},
			Timestamp: 1500000,
			RSSI:      -60,
			Channel:   37,
			Length:    3,
		}

		So(p.Print(f), ShouldBeTrue)
		lines := strings.Split(buf.String(), "\n")
		So(lines[0], ShouldEqual, "Timestamp: 1.500000\tLength: 3\tRSSI: -60\tChannel: 37\tPHY: 1M")
		So(lines[1], ShouldStartWith, "00000000  02 01 06")

		Convey("Duplicates are suppressed", func() {
			So(p.Print(f), ShouldBeFalse)
		})

		Convey("Same payload on another channel", func() {
			f.Channel = 38
			So(p.Print(f), ShouldBeTrue)
		})
	})

	Convey("No dedup window", t, func() {
		var buf bytes.Buffer
		p := newPrinter(&buf, "2M", 0)
		f := blesniffer.Frame{Payload: []byte{1}, Length: 1}
		So(p.Print(f), ShouldBeTrue)
		So(p.Print(f), ShouldBeTrue)
	})
}

func TestParsePHY(t *testing.T) {
	Convey("PHY names", t, func() {
		for name, want := range map[string]rfcore.PHYMode{"1M": rfcore.PHY1M, "2m": rfcore.PHY2M, "coded": rfcore.PHYCoded} {
			got, err := parsePHY(name)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}
		_, err := parsePHY("4M")
		So(err, ShouldNotBeNil)
	})
}
