// Command planjunctions is the offline preprocessing step: it parses an OSM
// PBF extract of a signed cycling-junction network, builds the full street
// graph and condenses it into the junction graph, and writes both to a
// binary cache a server process can load at startup instead of
// re-parsing OSM on every boot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"windloop/pkg/fullgraph"
	"windloop/pkg/graphcache"
	"windloop/pkg/junctiongraph"
	"windloop/pkg/network/osmjunctions"
)

func main() {
	input := flag.String("input", "", "Path to .osm.pbf file")
	output := flag.String("output", "region.cache", "Output binary cache file path")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLon,maxLat,maxLon")
	netherlands := flag.Bool("netherlands", false, "Shortcut for --bbox 50.7,3.3,53.6,7.3 (Netherlands bounding box)")
	concurrent := flag.Bool("concurrent", false, "Run the OSM node pass in an errgroup goroutine (still after the way pass)")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: planjunctions --input <file.osm.pbf> [--output region.cache] [--netherlands | --bbox minLat,minLon,maxLat,maxLon]")
		os.Exit(1)
	}

	var opts osmjunctions.Options
	opts.Concurrent = *concurrent
	if *netherlands {
		opts.BBox = osmjunctions.BBox{MinLat: 50.7, MaxLat: 53.6, MinLon: 3.3, MaxLon: 7.3}
		log.Println("Using Netherlands bounding box filter: lat [50.70, 53.60], lon [3.30, 7.30]")
	} else if *bbox != "" {
		var minLat, minLon, maxLat, maxLon float64
		if _, err := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLon, &maxLat, &maxLon); err != nil {
			log.Fatalf("Invalid bbox format (expected minLat,minLon,maxLat,maxLon): %v", err)
		}
		opts.BBox = osmjunctions.BBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lon [%.4f, %.4f]", minLat, maxLat, minLon, maxLon)
	}

	start := time.Now()

	log.Println("Opening OSM file...")
	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("failed to open input file: %v", err)
	}
	defer f.Close()

	log.Println("Parsing OSM data...")
	raw, err := osmjunctions.Load(context.Background(), f, opts)
	if err != nil {
		log.Fatalf("failed to parse OSM data: %v", err)
	}
	log.Printf("Parsed %d nodes, %d edges", len(raw.Nodes), len(raw.Edges))

	log.Println("Building street graph...")
	fg := fullgraph.Build(raw)
	log.Printf("Street graph: %d nodes, %d edges", fg.NumNodes, fg.NumEdges)

	log.Println("Extracting largest connected component...")
	component := fullgraph.LargestComponent(fg)
	log.Printf("Largest component: %d nodes (%.1f%%)", len(component), float64(len(component))/float64(fg.NumNodes)*100)
	fg = fullgraph.FilterToComponent(fg, component)
	log.Printf("Filtered street graph: %d nodes, %d edges", fg.NumNodes, fg.NumEdges)

	log.Println("Condensing junction graph...")
	jg := junctiongraph.Build(fg)
	log.Printf("Junction graph: %d junctions, %d corridors", jg.NumJunctions, len(jg.Edges))
	if jg.NumJunctions == 0 {
		log.Fatal("no signed junctions found in this extract; check the bounding box and *_ref tagging")
	}

	log.Printf("Writing cache to %s...", *output)
	if err := graphcache.Write(*output, fg, jg); err != nil {
		log.Fatalf("failed to write cache: %v", err)
	}

	info, err := os.Stat(*output)
	if err != nil {
		log.Fatalf("failed to stat output: %v", err)
	}
	log.Printf("Done in %s. Output: %s (%.1f MB)", time.Since(start).Round(time.Second), *output, float64(info.Size())/(1024*1024))
}
