// ringwave-monitor tails a running dashboard's event stream from another
// terminal or another machine.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-ringwave/internal/httpc"
)

func main() {
	host := flag.String("host", "localhost:8090", "Dashboard host:port")
	samples := flag.Bool("samples", false, "Tail raw samples instead of events")
	flag.Parse()

	// One-shot snapshot of where the controller is right now.
	if resp, err := httpc.Get(fmt.Sprintf("http://%s/api/state", *host)); err == nil {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		fmt.Printf("📊 %s\n", body)
	} else {
		fmt.Fprintf(os.Stderr, "state fetch failed: %v\n", err)
	}

	path := "/ws/events"
	if *samples {
		path = "/ws/samples"
	}
	url := fmt.Sprintf("ws://%s%s", *host, path)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", url, err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("🔌 Tailing %s\n", url)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// Re-indent for the terminal; fall back to the raw payload.
		var pretty map[string]any
		if json.Unmarshal(data, &pretty) == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Println(string(data))
		}
	}
}
