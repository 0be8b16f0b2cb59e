package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-ringwave/internal/config"
	"github.com/teslashibe/go-ringwave/internal/log"
	"github.com/teslashibe/go-ringwave/pkg/ble"
	"github.com/teslashibe/go-ringwave/pkg/debug"
	"github.com/teslashibe/go-ringwave/pkg/ring"
	"github.com/teslashibe/go-ringwave/pkg/sink"
)

func main() {
	// Command line flags
	scanTimeout := flag.Duration("scan-timeout", 15*time.Second, "How long to scan for a ring")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	debugFrames := flag.Bool("debug-frames", false, "Hexdump every BLE frame")
	flag.Parse()

	level := config.LogLevel()
	if *debugFlag {
		level = "debug"
	}
	log.Init(level)
	debug.Enabled = *debugFlag
	debug.Frames = *debugFrames

	fmt.Println("💍 Ringwave Controller")
	fmt.Printf("   Name pattern: %s\n", config.NamePattern().String())
	fmt.Println()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n👋 Shutting down...")
		cancel()
	}()

	ctrl := ring.New(
		ring.WithStateSink(sink.Console{}),
		ring.WithControlSink(sink.Console{}),
	)

	dev := ble.NewDevice(ctrl, ble.Config{ScanTimeout: *scanTimeout})
	if err := dev.Connect(ctx); err != nil {
		log.Error("connect failed", "err", err)
		os.Exit(1)
	}
	defer dev.Disconnect()

	fmt.Println("✅ Connected - wave at the ring to wake it up")

	<-ctx.Done()
	fmt.Println("👋 Goodbye!")
}
