package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toozej/smartlists/internal/criteria"
	"github.com/toozej/smartlists/internal/evaluator"
	"github.com/toozej/smartlists/internal/search"
	"github.com/toozej/smartlists/internal/types"
)

// newPreviewCmd creates the preview command for evaluating criteria without syncing.
func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [playlist]",
		Short: "Show the tracks a smart playlist would contain",
		Long: `Evaluate a stored smart playlist, or a criteria document given with --file
(.json, .yaml or .yml), against the local library and print the matching
tracks in playlist order. Nothing is written and Spotify is not contacted.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runPreview,
	}

	cmd.Flags().String("file", "", "Criteria document to evaluate instead of a stored playlist")
	cmd.Flags().Bool("json", false, "Print tracks as JSON")

	return cmd
}

// runPreview executes the preview command.
func runPreview(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")
	asJSON, _ := cmd.Flags().GetBool("json")

	lib, err := openLibrary(conf.Database, log.StandardLogger())
	if err != nil {
		log.WithError(err).Fatal("Failed to open library")
		return
	}
	defer lib.Close()

	ctx, stop := signalContext()
	defer stop()

	doc, err := previewDocument(ctx, search.NewPlaylistSearcher(lib, log.StandardLogger()), file, args)
	if err != nil {
		log.WithError(err).Error("Failed to load criteria")
		return
	}

	snap, err := lib.Snapshot(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to read library")
		return
	}

	tracks, err := preview(doc, snap, time.Now())
	if err != nil {
		log.WithError(err).Error("Invalid criteria")
		return
	}

	if asJSON {
		if err := printTracksJSON(os.Stdout, tracks); err != nil {
			log.WithError(err).Error("Failed to encode tracks")
		}
		return
	}
	printTracks(os.Stdout, tracks)
}

// PlaylistResolver maps a query to a stored smart playlist.
type PlaylistResolver interface {
	Resolve(ctx context.Context, query string) (*search.PlaylistMatch, error)
}

// previewDocument picks the criteria to evaluate from the flags and arguments.
func previewDocument(ctx context.Context, playlists PlaylistResolver, file string, args []string) (criteria.Document, error) {
	switch {
	case file != "" && len(args) > 0:
		return criteria.Document{}, errors.New("give a playlist or --file, not both")
	case file != "":
		return criteria.LoadFile(file)
	case len(args) == 0:
		return criteria.Document{}, errors.New("a playlist name or --file is required")
	}

	match, err := playlists.Resolve(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		return criteria.Document{}, err
	}
	return match.Playlist.Criteria, nil
}

// preview compiles doc and evaluates it against lib.
func preview(doc criteria.Document, lib types.LibraryView, now time.Time) ([]types.Track, error) {
	c, err := criteria.Compile(doc)
	if err != nil {
		return nil, err
	}
	return evaluator.Select(c, lib, now)
}

// printTracks displays tracks in playlist order
func printTracks(w io.Writer, tracks []types.Track) {
	_, _ = fmt.Fprintf(w, "\n%d matching track(s):\n\n", len(tracks))
	for i, t := range tracks {
		_, _ = fmt.Fprintf(w, "%3d. %s\n", i+1, t.String())
		var details []string
		if t.Rating != nil {
			details = append(details, fmt.Sprintf("rating %.1f", *t.Rating))
		}
		details = append(details, fmt.Sprintf("%d plays", t.PlayCount))
		if t.LastPlayed != nil {
			details = append(details, "last played "+t.LastPlayed.Format("Jan 2, 2006"))
		}
		if len(details) > 0 {
			_, _ = fmt.Fprintf(w, "     %s\n", strings.Join(details, ", "))
		}
	}
}

func printTracksJSON(w io.Writer, tracks []types.Track) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tracks)
}
