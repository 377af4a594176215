package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toozej/smartlists/internal/search"
)

// newSearchCmd creates the search command for finding smart playlists by name.
func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search smart playlists by name",
		Long: `Search the stored smart playlists using fuzzy matching on their names.
The best match is what sync and preview would act on for the same query.`,
		Args: cobra.ExactArgs(1),
		Run:  runSearch,
	}

	return cmd
}

// runSearch executes the search command.
func runSearch(cmd *cobra.Command, args []string) {
	query := strings.TrimSpace(args[0])
	if query == "" {
		log.Error("Search query cannot be empty")
		return
	}

	lib, err := openLibrary(conf.Database, log.StandardLogger())
	if err != nil {
		log.WithError(err).Fatal("Failed to open library")
		return
	}
	defer lib.Close()

	searcher := search.NewPlaylistSearcher(lib, log.StandardLogger())
	matches, err := searcher.Rank(context.Background(), query)
	if err != nil {
		log.WithError(err).Error("Failed to search smart playlists")
		return
	}

	if len(matches) == 0 {
		log.WithField("query", query).Warn("No matching smart playlists found")
		return
	}

	displaySearchResults(os.Stdout, matches, query)
}

// displaySearchResults displays the search results in a formatted way
func displaySearchResults(w io.Writer, matches []search.PlaylistMatch, query string) {
	_, _ = fmt.Fprintf(w, "\nSearch Results for '%s':\n", query)
	_, _ = fmt.Fprintf(w, "Found %d matching smart playlist(s):\n\n", len(matches))

	for i, m := range matches {
		status := "active"
		if !m.Playlist.IsActive {
			status = "inactive"
		}
		_, _ = fmt.Fprintf(w, "%d. %s (%.2f, %s)\n", i+1, m.Playlist.Name, m.Confidence, status)
		_, _ = fmt.Fprintf(w, "   ID: %s\n", m.Playlist.ID)
		if m.Playlist.LastSyncedAt != nil {
			_, _ = fmt.Fprintf(w, "   Last synced: %s\n", m.Playlist.LastSyncedAt.Format("Jan 2, 2006 15:04"))
		}
		_, _ = fmt.Fprintln(w)
	}
}
