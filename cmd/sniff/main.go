package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/hatstand/blesniffer"
	"github.com/hatstand/blesniffer/rfcore"
	"github.com/hatstand/blesniffer/sim"
	"github.com/hatstand/blesniffer/spiengine"
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var dryRun = flag.Bool("n", false, "Use a simulated radio instead of the SPI coprocessor")
var channel = flag.Uint("channel", 37, "Channel to receive on (0-39)")
var adv = flag.Bool("adv", false, "Hop over the advertising channels 37, 38 and 39")
var hop = flag.Duration("hop", 10*time.Millisecond, "Time spent on 38 and 39 after each hop off 37")
var phy = flag.String("phy", "1M", "PHY for single channel receive: 1M, 2M or coded")
var accessAddress = flag.Uint("aa", uint(rfcore.AdvAccessAddress), "Access address for single channel receive")
var crcInit = flag.Uint("crc", uint(rfcore.AdvCRCInit), "CRC init value for single channel receive")
var timeout = flag.Uint("timeout", 0, "Radio time (4 MHz ticks) at which a single channel receive ends, 0 for never")
var irqPin = flag.Int("gpio-irq", 24, "GPIO pin connected to the coprocessor interrupt line (BCM numbering)")
var spiSpeed = flag.Int("spi-speed", 4000000, "SPI clock in Hz")
var httpAddr = flag.String("http", ":9100", "Address to serve /metrics on, empty to disable")
var dedup = flag.Duration("dedup", time.Second, "Suppress identical frames on a channel within this window, 0 to print all")
var debug = flag.Bool("debug", false, "Debug logging")

// Pending frames between the interrupt context and the printer.
const frameBacklog = 64

func parsePHY(s string) (rfcore.PHYMode, error) {
	switch strings.ToLower(s) {
	case "1m":
		return rfcore.PHY1M, nil
	case "2m":
		return rfcore.PHY2M, nil
	case "coded":
		return rfcore.PHYCoded, nil
	default:
		return 0, fmt.Errorf("unknown PHY %q", s)
	}
}

func newLogger() (*zap.Logger, error) {
	if *debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func createEngine(log *zap.Logger) (blesniffer.Engine, func(), error) {
	if *dryRun {
		return sim.New(), func() {}, nil
	}

	if err := embd.InitSPI(); err != nil {
		return nil, nil, err
	}
	if err := embd.InitGPIO(); err != nil {
		embd.CloseSPI()
		return nil, nil, err
	}
	irq, err := embd.NewDigitalPin(*irqPin)
	if err != nil {
		embd.CloseGPIO()
		embd.CloseSPI()
		return nil, nil, err
	}
	if err := irq.SetDirection(embd.In); err != nil {
		irq.Close()
		embd.CloseGPIO()
		embd.CloseSPI()
		return nil, nil, err
	}
	bus := embd.NewSPIBus(embd.SPIMode0, 0, *spiSpeed, 8, 0)

	cleanup := func() {
		bus.Close()
		irq.Close()
		embd.CloseGPIO()
		embd.CloseSPI()
	}
	return spiengine.New(bus, irq, log.Named("spiengine")), cleanup, nil
}

// hopTicks converts a hop interval to radio timer ticks.
func hopTicks(d time.Duration) (uint32, error) {
	if d <= 0 {
		return 0, fmt.Errorf("%w: hop interval %v", blesniffer.ErrInvalidArgument, d)
	}
	ticks := d.Microseconds() * rfcore.ClockDivisor
	if ticks > math.MaxUint32 {
		return 0, fmt.Errorf("%w: hop interval %v exceeds the radio timer", blesniffer.ErrInvalidArgument, d)
	}
	return uint32(ticks), nil
}

func start(s *blesniffer.Session, h blesniffer.Handler) error {
	if *adv {
		ticks, err := hopTicks(*hop)
		if err != nil {
			return err
		}
		return s.RecvAdvertisingChain(ticks, h)
	}
	mode, err := parsePHY(*phy)
	if err != nil {
		return fmt.Errorf("%w: %v", blesniffer.ErrInvalidArgument, err)
	}
	end := uint32(*timeout)
	if end == 0 {
		end = rfcore.Infinite
	}
	return s.RecvSingleChannel(mode, uint8(*channel), uint32(*accessAddress), uint32(*crcInit), end, h)
}

func main() {
	flag.Parse()

	log, err := newLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if *channel >= rfcore.NumChannels {
		log.Error("Channel out of range", zap.Uint("channel", *channel))
		os.Exit(-blesniffer.Errno(blesniffer.ErrInvalidArgument))
	}
	if *adv {
		if _, err := hopTicks(*hop); err != nil {
			log.Error("Bad hop interval", zap.Error(err))
			os.Exit(-blesniffer.Errno(err))
		}
	}

	engine, cleanup, err := createEngine(log)
	if err != nil {
		log.Error("Failed to set up radio", zap.Error(err))
		os.Exit(-blesniffer.Errno(blesniffer.ErrResourceUnavailable))
	}
	defer cleanup()

	metrics := blesniffer.NewMetrics(prometheus.DefaultRegisterer)
	session := blesniffer.NewSession(engine,
		blesniffer.WithLogger(log.Named("session")),
		blesniffer.WithMetrics(metrics))
	if err := session.Init(); err != nil {
		log.Error("Failed to initialise radio", zap.Error(err))
		cleanup()
		os.Exit(-blesniffer.Errno(err))
	}

	frames := make(chan blesniffer.Frame, frameBacklog)
	handler := blesniffer.HandlerFunc(func(f blesniffer.Frame) {
		f.Payload = append([]byte(nil), f.Payload...)
		select {
		case frames <- f:
		default:
		}
	})
	if err := start(session, handler); err != nil {
		log.Error("Failed to start receive", zap.Error(err))
		session.Close()
		cleanup()
		os.Exit(-blesniffer.Errno(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if e, ok := engine.(*sim.Engine); ok {
		go simulate(ctx, e, 100*time.Millisecond)
	}

	var srv *http.Server
	if *httpAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: *httpAddr, Handler: mux}
		go func() {
			log.Info("Serving metrics", zap.String("addr", *httpAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	var hops <-chan time.Time
	if *adv {
		ticker := time.NewTicker(*hop)
		defer ticker.Stop()
		hops = ticker.C
	}

	phyName := *phy
	if *adv {
		phyName = rfcore.PHY1M.String()
	}
	out := newPrinter(os.Stdout, phyName, *dedup)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	for {
		select {
		case f := <-frames:
			out.Print(f)
		case <-hops:
			if session.Done() {
				if err := session.Stop(); err != nil {
					log.Warn("Failed to stop chain", zap.Error(err))
				}
				if err := start(session, handler); err != nil {
					log.Error("Failed to re-arm chain", zap.Error(err))
				}
				continue
			}
			if err := session.TriggerHop(); err != nil && !errors.Is(err, blesniffer.ErrInvalidState) {
				log.Warn("Failed to hop", zap.Error(err))
			}
		case <-ch:
			log.Info("Shutting down...")
			cancel()
			if err := session.Close(); err != nil {
				log.Warn("Failed to close radio", zap.Error(err))
			}
			if srv != nil {
				shutdownCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer httpCancel()
				srv.Shutdown(shutdownCtx)
			}
			return
		}
	}
}
