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
	"github.com/teslashibe/go-ringwave/pkg/ring"
	"github.com/teslashibe/go-ringwave/pkg/sink"
	"github.com/teslashibe/go-ringwave/pkg/web"
)

func main() {
	// Command line flags
	port := flag.String("port", config.DashboardPort(), "Dashboard port")
	broker := flag.String("mqtt", config.MQTTBroker(), "MQTT broker URL (empty = disabled)")
	scanTimeout := flag.Duration("scan-timeout", 15*time.Second, "How long to scan for a ring")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := config.LogLevel()
	if *debugFlag {
		level = "debug"
	}
	log.Init(level)

	fmt.Println("💍 Ringwave Dashboard")
	fmt.Printf("   Dashboard: http://localhost:%s\n", *port)
	if *broker != "" {
		fmt.Printf("   MQTT: %s\n", *broker)
	}
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n👋 Shutting down...")
		cancel()
	}()

	// Sinks: console always, dashboard always, MQTT when configured.
	ctrl := ring.New()
	srv := web.NewServer(ctrl, *port)
	states := []ring.StateSink{sink.Console{}, srv}
	controls := []ring.ControlSink{sink.Console{}, srv}

	if *broker != "" {
		mq, err := sink.NewMQTT(*broker, "ringwave-dashboard", config.MQTTTopic())
		if err != nil {
			log.Error("mqtt connect failed", "err", err)
			os.Exit(1)
		}
		defer mq.Close()
		states = append(states, mq)
		controls = append(controls, mq)
	}

	ctrl.SetStateSink(ring.MultiStateSink(states...))
	ctrl.SetControlSink(ring.MultiControlSink(controls...))
	ctrl.SetRawSink(srv)

	srv.StartAsync()
	defer srv.Shutdown()

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
