package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/melbec/dispensomatic/pkg/ot2"
)

func main() {
	addr := flag.String("address", ot2.DefaultAddr, "robot address (host[:port])")
	flag.Parse()

	fmt.Println("🤖 OT-2 Endpoint Probe")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	client := ot2.New(*addr)

	if err := client.Ping(); err != nil {
		fmt.Printf("✗ %s not reachable: %v\n", client.Addr(), err)
		fmt.Println("Make sure the robot is powered on and on the network.")
		os.Exit(1)
	}
	fmt.Printf("Port open on %s\n\n", client.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ok := 0
	endpoints := ot2.StartupEndpoints()
	for _, endpoint := range endpoints {
		status, err := client.Probe(ctx, endpoint)
		switch {
		case err != nil:
			fmt.Printf("  ✗ %s: %v\n", endpoint, err)
		case status >= 400:
			fmt.Printf("  ⚠ %s: HTTP %d\n", endpoint, status)
		default:
			fmt.Printf("  ✓ %s: OK\n", endpoint)
			ok++
		}
	}
	fmt.Printf("\n%d/%d endpoints responding\n\n", ok, len(endpoints))

	health, err := client.Health(ctx)
	if err != nil {
		fmt.Printf("Health check failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(health, "", "  ")
	fmt.Println("Health:")
	fmt.Println(string(out))
}
