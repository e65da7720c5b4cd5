package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/hatstand/blesniffer"
	"github.com/patrickmn/go-cache"
)

// printer writes frames as a header line and a hex dump, skipping frames
// already seen on the same channel within the dedup window.
type printer struct {
	w    io.Writer
	phy  string
	seen *cache.Cache
}

func newPrinter(w io.Writer, phy string, window time.Duration) *printer {
	p := &printer{w: w, phy: phy}
	if window > 0 {
		p.seen = cache.New(window, 2*window)
	}
	return p
}

func (p *printer) duplicate(f blesniffer.Frame) bool {
	if p.seen == nil {
		return false
	}
	key := fmt.Sprintf("%d:%x", f.Channel, f.Payload)
	if _, found := p.seen.Get(key); found {
		return true
	}
	p.seen.Set(key, struct{}{}, cache.DefaultExpiration)
	return false
}

// Print reports whether f was written.
func (p *printer) Print(f blesniffer.Frame) bool {
	if p.duplicate(f) {
		return false
	}
	fmt.Fprintf(p.w, "Timestamp: %.6f\tLength: %d\tRSSI: %d\tChannel: %d\tPHY: %s\n",
		float64(f.Timestamp)/1e6, f.Length, f.RSSI, f.Channel, p.phy)
	fmt.Fprint(p.w, hex.Dump(f.Payload))
	return true
}
