package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/curbz/tellofleet/internal/backend"
	"github.com/curbz/tellofleet/internal/fleet"
	"github.com/curbz/tellofleet/internal/mockbackend"
	"github.com/curbz/tellofleet/internal/model"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	count := flag.Int("count", 1, "number of drones to start")
	prefix := flag.String("prefix", "drone", "drone id prefix")
	mockBackend := flag.Bool("mock-backend", false, "run a local state collector and push to it")
	flag.Parse()

	cfg := model.DefaultConfig()
	if *configPath != "" {
		loaded, err := model.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("FATAL: failed to load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}

	if *mockBackend {
		collector := mockbackend.Start("127.0.0.1:8000")
		defer collector.Shutdown()
		cfg.Backend.URL = "http://127.0.0.1:8000"
	}

	sink, err := backend.NewSink(cfg.Backend.URL)
	if err != nil {
		log.Fatalf("FATAL: failed to set up backend sink: %v", err)
	}
	defer sink.Close()

	manager := fleet.NewManager(cfg, sink)
	manager.Start(context.Background())

	drones, err := manager.CreateMultiple(*count, *prefix)
	if err != nil {
		manager.Stop()
		log.Fatalf("FATAL: failed to start fleet: %v", err)
	}

	fmt.Println("==================================")
	fmt.Printf("Fleet running: %d drone(s)\n", len(drones))
	for _, d := range drones {
		info := d.Info()
		fmt.Printf("  - %-20s udp/%d\n", info.DroneID, info.UDPPort)
	}
	fmt.Printf("State broadcasts on udp/%d at %d Hz\n", cfg.Broadcast.Port, cfg.Broadcast.Rate)
	fmt.Println("==================================")
	log.Println("Press Ctrl+C to shut down.")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	log.Println("Interrupt received. Shutting down fleet...")
	manager.Stop()
}
