// Command tracedemo builds a small hierarchical layout in memory, traces
// nets through it and prints the netlist directives of its connectivity
// model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"layout-tracer/internal/boolop"
	"layout-tracer/internal/config"
	"layout-tracer/internal/connectivity"
	"layout-tracer/internal/layout"
	"layout-tracer/internal/metrics"
	"layout-tracer/internal/netlist"
	"layout-tracer/internal/shape"
	"layout-tracer/internal/trace"
	"layout-tracer/internal/version"
	"layout-tracer/pkg/geometry"
)

const (
	metal1 layout.LayerID = 1
	via1   layout.LayerID = 2
	metal2 layout.LayerID = 3
	poly   layout.LayerID = 4
	cut    layout.LayerID = 5
)

func main() {
	configPath := flag.String("config", "", "Settings file (JSON or YAML)")
	maxShapes := flag.Int("max", -1, "Override the shape budget (0 = unlimited)")
	serve := flag.String("serve", "", "Serve /metrics on this address after tracing")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	settings := config.Default()
	if *configPath != "" {
		s, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
		settings = s
	}
	if *maxShapes >= 0 {
		settings.MaxShapes = *maxShapes
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	l, top := demoLayout()
	model, open := demoModel()
	collector := settings.Collector()
	opts := settings.TraceOptions(settings.Logger(), collector)
	tracer := trace.New(model, l, boolop.Grid{}, opts...)

	start := trace.Seed{Cell: top, Point: geometry.NewPoint(1, 1), Layer: metal1}
	res, err := tracer.Trace(ctx, start)
	if err != nil {
		log.Fatalf("Trace %s failed: %v", start, err)
	}
	printShapes("Net from "+start.String(), res)

	openSeed := start
	openSeed.Layer = open
	res, err = tracer.Trace(ctx, openSeed)
	if err != nil {
		log.Fatalf("Trace %s failed: %v", openSeed, err)
	}
	printShapes("Net from "+openSeed.String(), res)

	pad := trace.Seed{Cell: top, Point: geometry.NewPoint(40, 45), Layer: metal2}
	res, err = tracer.TracePath(ctx, start, pad)
	switch {
	case errors.Is(err, trace.ErrNotConnected):
		fmt.Printf("\n%s and %s are not connected\n", start, pad)
	case err != nil:
		log.Fatalf("Path trace failed: %v", err)
	default:
		fmt.Printf("\nPath %s -> %s (%d hops, incomplete=%v):\n", start, pad, len(res.Path)-1, res.Incomplete)
		for i, s := range res.Path {
			fmt.Printf("  %2d  %s\n", i, s)
		}
	}

	n := netlist.New("demo")
	for layer, name := range settings.LayerNames {
		n.SetLayerName(layout.LayerID(layer), name)
	}
	if err := n.Extract(model, l, boolop.Grid{}, top); err != nil {
		log.Fatalf("Netlist extraction failed: %v", err)
	}
	fmt.Printf("\nConnect directives:\n")
	for _, d := range n.Directives {
		fmt.Printf("  connect(%s, %s)\n", n.LayerName(d.A), n.LayerName(d.B))
	}
	fmt.Printf("\nLayer groups:\n")
	for _, g := range n.LayerGroups() {
		names := make([]string, len(g))
		for i, id := range g {
			names[i] = n.LayerName(id)
		}
		fmt.Printf("  %-12s %s\n", n.GroupName(g), strings.Join(names, " "))
	}
	for id, r := range n.Regions {
		fmt.Printf("\nRegion %s (%s): %d shapes\n", id, r.Symbol, len(r.Shapes))
	}

	if b, ok := collector.(*metrics.Basic); ok {
		s := b.Stats()
		fmt.Printf("\nTraces: %d (incomplete %d, errors %d), avg %s\n", s.Traces, s.Incomplete, s.TraceErrors, s.TraceAvg)
		fmt.Printf("Rounds: %d, queries: %d (%d hits), evaluations: %d\n", s.Rounds, s.Queries, s.QueryHits, s.Evaluations)
	}

	if *serve != "" {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("Metrics available at http://%s/metrics", *serve)
		srv := &http.Server{Addr: *serve}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server error: %v", err)
		}
	}
}

// demoLayout builds a metal1 strip joined to a metal2 riser by a via, with
// a pad cell placed on top of the riser and an unconnected poly shape.
func demoLayout() (*layout.Layout, layout.CellID) {
	l := layout.New()
	top := l.AddCell("TOP")
	padCell := l.AddCell("PAD")

	boxes := []struct {
		cell  layout.CellID
		layer layout.LayerID
		box   geometry.Box
	}{
		{top, metal1, geometry.NewBox(0, 0, 40, 4)},
		{top, via1, geometry.NewBox(36, 0, 40, 4)},
		{top, metal2, geometry.NewBox(36, 0, 40, 40)},
		{top, cut, geometry.NewBox(18, 0, 22, 4)},
		{top, poly, geometry.NewBox(0, 10, 4, 20)},
		{padCell, metal2, geometry.NewBox(0, 0, 10, 10)},
	}
	for _, b := range boxes {
		if _, err := l.AddBox(b.cell, b.layer, b.box); err != nil {
			log.Fatalf("Failed to add %s: %v", b.box, err)
		}
	}
	if err := l.AddInstance(top, padCell, geometry.Translation(35, 40)); err != nil {
		log.Fatalf("Failed to place PAD: %v", err)
	}
	return l, top
}

// demoModel joins metal1 and metal2 through via1 and adds a logical layer
// of metal1 with the cut layer removed.
func demoModel() (*connectivity.Model, layout.LayerID) {
	m := connectivity.NewModel()
	m.AddConnection(connectivity.NewViaConnection(metal1, via1, metal2))
	open := m.RegisterLogicalLayer(
		connectivity.AndNot(connectivity.Leaf(metal1), connectivity.Leaf(cut)),
		"metal1-cut",
	)
	m.AddConnection(connectivity.NewConnection(open, open))
	return m, open
}

func printShapes(title string, res *trace.Result) {
	fmt.Printf("\n%s: %d shapes in %d rounds (incomplete=%v)\n", title, len(res.Shapes), res.Rounds, res.Incomplete)
	for _, s := range res.Shapes {
		if s.Synthetic && s.Shape.Area() <= 1 {
			continue
		}
		fmt.Printf("  %s\n", describe(s))
	}
}

func describe(s shape.TracedShape) string {
	return fmt.Sprintf("%-4s cell=%d %s", s.Layer, s.Cell, s.Polygon().BBox())
}
