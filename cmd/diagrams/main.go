// Package main renders the smartlists architecture diagrams as Graphviz dot
// files under docs/diagrams/go-diagrams.
//
// Render the images with:
//
//	go run ./cmd/diagrams
//	cd docs/diagrams/go-diagrams && dot -Tpng architecture.dot > architecture.png
package main

import (
	"log"
	"os"

	"github.com/blushft/go-diagrams/diagram"
	"github.com/blushft/go-diagrams/nodes/gcp"
	"github.com/blushft/go-diagrams/nodes/programming"
)

func main() {
	if err := os.MkdirAll("docs/diagrams", 0750); err != nil {
		log.Fatal(err)
	}
	if err := os.Chdir("docs/diagrams"); err != nil {
		log.Fatal(err)
	}

	generateArchitectureDiagram()
	generateComponentDiagram()
}

// generateArchitectureDiagram shows how the service talks to its stores and Spotify.
func generateArchitectureDiagram() {
	d, err := diagram.New(diagram.Filename("architecture"), diagram.Label("smartlists architecture"), diagram.Direction("LR"))
	if err != nil {
		log.Fatal(err)
	}

	cli := programming.Language.Go(diagram.NodeLabel("smartlists CLI"))
	server := programming.Language.Go(diagram.NodeLabel("smartlists serve\n(gin API + cron)"))
	library := gcp.Database.Sql(diagram.NodeLabel("Library\n(SQLite)"))
	jobStore := gcp.Database.Memorystore(diagram.NodeLabel("Job store\n(Redis)"))
	spotify := gcp.Compute.ComputeEngine(diagram.NodeLabel("Spotify Web API"))

	d.Connect(cli, library, diagram.Forward())
	d.Connect(server, library, diagram.Forward())
	d.Connect(cli, jobStore, diagram.Forward())
	d.Connect(server, jobStore, diagram.Forward())
	d.Connect(server, spotify, diagram.Forward())
	d.Connect(cli, spotify, diagram.Forward())

	if err := d.Render(); err != nil {
		log.Fatal(err)
	}
}

// generateComponentDiagram shows the packages of an outbound and inbound sync pass.
func generateComponentDiagram() {
	d, err := diagram.New(diagram.Filename("components"), diagram.Label("smartlists sync pipeline"), diagram.Direction("TB"))
	if err != nil {
		log.Fatal(err)
	}

	jobs := programming.Language.Go(diagram.NodeLabel("jobs\n(manager, locks)"))
	syncer := programming.Language.Go(diagram.NodeLabel("syncer"))

	criteria := programming.Language.Go(diagram.NodeLabel("criteria"))
	evaluator := programming.Language.Go(diagram.NodeLabel("evaluator"))
	materializer := programming.Language.Go(diagram.NodeLabel("materializer\n(fingerprint)"))
	gate := programming.Language.Go(diagram.NodeLabel("gate"))
	reconcile := programming.Language.Go(diagram.NodeLabel("reconcile\n(diff, chunked apply)"))
	playlist := programming.Language.Go(diagram.NodeLabel("playlist\n(create, full build)"))

	mirror := programming.Language.Go(diagram.NodeLabel("mirror"))
	enrich := programming.Language.Go(diagram.NodeLabel("enrich"))
	aggregate := programming.Language.Go(diagram.NodeLabel("aggregate\n(tracker flush)"))

	store := gcp.Database.Sql(diagram.NodeLabel("store"))
	spotify := gcp.Compute.ComputeEngine(diagram.NodeLabel("spotify client"))

	outbound := diagram.NewGroup("outbound").Label("Smart playlists to Spotify").Add(criteria, evaluator, materializer, gate, reconcile, playlist)
	inbound := diagram.NewGroup("inbound").Label("Spotify to library").Add(mirror, enrich, aggregate)

	d.Connect(jobs, syncer, diagram.Forward())
	d.Connect(syncer, materializer, diagram.Forward())
	d.Connect(materializer, evaluator, diagram.Forward())
	d.Connect(evaluator, criteria, diagram.Forward())
	d.Connect(syncer, gate, diagram.Forward())
	d.Connect(gate, reconcile, diagram.Forward())
	d.Connect(gate, playlist, diagram.Forward())
	d.Connect(reconcile, spotify, diagram.Forward())
	d.Connect(playlist, spotify, diagram.Forward())

	d.Connect(syncer, mirror, diagram.Forward())
	d.Connect(mirror, enrich, diagram.Forward())
	d.Connect(enrich, aggregate, diagram.Forward())
	d.Connect(mirror, spotify, diagram.Forward())
	d.Connect(enrich, spotify, diagram.Forward())

	d.Connect(materializer, store, diagram.Forward())
	d.Connect(mirror, store, diagram.Forward())
	d.Connect(aggregate, store, diagram.Forward())

	d.Group(outbound).Group(inbound)

	if err := d.Render(); err != nil {
		log.Fatal(err)
	}
}
