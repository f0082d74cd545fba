package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	_ "time/tzdata"

	"github.com/tugasin/tugasin-blog/service"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yml; defaults and environment only when empty")
	flag.Parse()

	if *configPath == "" {
		if _, err := os.Stat("config.yml"); err == nil {
			*configPath = "config.yml"
		}
	}

	mainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := service.NewService(mainCtx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create service: %v\n", err)
		os.Exit(1)
	}

	if err := svc.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Service stopped with error: %v\n", err)
		os.Exit(1)
	}
}
