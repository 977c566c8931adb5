package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"windloop/pkg/api"
	"windloop/pkg/graphcache"
	"windloop/pkg/planner"
)

func main() {
	cachePath := flag.String("cache", "region.cache", "Path to a binary cache written by planjunctions")
	port := flag.Int("port", 8080, "HTTP port")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	flag.Parse()

	start := time.Now()

	log.Printf("Loading region cache from %s...", *cachePath)
	fg, jg, err := graphcache.Read(*cachePath)
	if err != nil {
		log.Fatalf("failed to load region cache: %v", err)
	}
	log.Printf("Loaded: %d street nodes, %d street edges, %d junctions",
		fg.NumNodes, fg.NumEdges, jg.NumJunctions)

	planCfg := planner.DefaultConfig()
	cachePlanner := &planner.CachePlanner{FullGraph: fg, JunctionGraph: jg, Config: planCfg}

	// Reclaim memory from the cache-read temporaries before serving traffic.
	runtime.GC()
	debug.FreeOSMemory()

	log.Printf("Ready in %s", time.Since(start).Round(time.Millisecond))

	addr := fmt.Sprintf(":%d", *port)
	cfg := api.DefaultConfig(addr)
	cfg.CORSOrigin = *corsOrigin

	stats := api.StatsResponse{
		NumNodes:     fg.NumNodes,
		NumEdges:     fg.NumEdges,
		NumJunctions: int(jg.NumJunctions),
	}

	handlers := api.NewHandlers(cachePlanner, stats)
	srv := api.NewServer(cfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
