package main

import (
	"flag"
	"log"

	"github.com/sheikhbox/sheikhbox/pkg/boxd"
)

func main() {
	port := flag.Int("port", 8080, "Port for the boxd server to listen on")
	flag.Parse()

	config := boxd.Config{
		Port: *port,
	}

	server, err := boxd.NewServer(config)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
