// Package config provides error definitions for configuration-related errors.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration validation errors
var (
	// ErrEnvFileTraversal is returned when the .env path escapes the working directory
	ErrEnvFileTraversal = errors.New(".env file path traversal detected")

	// ErrInvalidMirrorSource is returned when a SYNC_MIRROR_SOURCES entry cannot be parsed
	ErrInvalidMirrorSource = errors.New("invalid mirror source")
)

// ParseSource splits a mirror source descriptor such as "album:4aawyAB9vmqN3uQ7FjRGTy"
// into its kind and remote ID. "liked-songs" takes no ID; the other kinds require one.
func ParseSource(s string) (kind, remoteID string, err error) {
	kind, remoteID, _ = strings.Cut(strings.TrimSpace(s), ":")
	switch kind {
	case "liked-songs":
		if remoteID != "" {
			return "", "", fmt.Errorf("%w %q: liked-songs takes no id", ErrInvalidMirrorSource, s)
		}
	case "album", "playlist", "artist-top":
		if remoteID == "" {
			return "", "", fmt.Errorf("%w %q: %s requires an id", ErrInvalidMirrorSource, s, kind)
		}
	default:
		return "", "", fmt.Errorf("%w %q: unknown kind %q", ErrInvalidMirrorSource, s, kind)
	}
	return kind, remoteID, nil
}
