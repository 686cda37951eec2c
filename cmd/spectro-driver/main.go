package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kromeklabs/spectro-driver/pkg/acquisition"
	"github.com/kromeklabs/spectro-driver/pkg/publish"
	redisclient "github.com/kromeklabs/spectro-driver/pkg/redis"
	"github.com/kromeklabs/spectro-driver/pkg/streamer"
	"github.com/kromeklabs/spectro-driver/pkg/transport"
	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

// Configuration flags
var (
	serialDevice   = flag.String("serial", "/dev/ttyACM0", "Serial device path for the detector's virtual COM port")
	baudRate       = flag.Int("baud", 115200, "Serial baud rate")
	framing        = flag.String("framing", "length", "Packet framing: \"length\" (length-prefixed) or \"frame\" (SLIP-style frame-delimited)")
	neutronIsGamma = flag.Bool("neutron-is-gamma", false, "Route neutron component requests to the gamma detector (single-sigma hardware)")
	redisAddr      = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass      = flag.String("redis-pass", "", "Redis password")
	redisDB        = flag.Int("redis-db", 0, "Redis database number")
)

func newStreamer(kind string) streamer.Streamer {
	switch kind {
	case "frame":
		return streamer.NewFrameDelimitedStreamer(wire.MaxReportSize)
	default:
		return streamer.NewLengthPrefixedStreamer(wire.MaxReportSize)
	}
}

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting spectrometer driver")
	log.Printf("Serial device: %s", *serialDevice)
	log.Printf("Baud rate: %d", *baudRate)
	log.Printf("Framing: %s", *framing)
	log.Printf("Redis address: %s", *redisAddr)

	redisClient, err := redisclient.New(*redisAddr, *redisPass, *redisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Printf("Connected to Redis")

	port, err := transport.OpenSerial(*serialDevice, *baudRate)
	if err != nil {
		log.Fatalf("Failed to open serial device %s: %v", *serialDevice, err)
	}
	defer port.Close()
	log.Printf("Opened serial device %s", *serialDevice)

	core := acquisition.New(port, newStreamer(*framing), *neutronIsGamma)

	bridge := publish.New(core, redisClient)
	bridge.Start()
	defer bridge.Stop()
	log.Printf("Publish bridge running, watching %s", publish.KeyCommandList)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Printf("Shutting down...")

	core.StopProcessing(wire.ComponentGamma, true)
	core.StopProcessing(wire.ComponentNeutron, true)
	core.StopProcessing(wire.ComponentDose, true)
}
