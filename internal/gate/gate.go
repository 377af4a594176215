// Package gate decides whether a sync pass has anything to do.
//
// Outbound smart playlist sync compares content fingerprints. Inbound
// mirroring compares the platform's opaque snapshot ID, which is available
// before any item has been fetched.
package gate

import "github.com/toozej/smartlists/internal/types"

// Decision is a gate result with the reason, for logging.
type Decision struct {
	Sync   bool
	Reason string
}

// Gate reasons.
const (
	ReasonForced          = "forced"
	ReasonNeverSynced     = "no stored fingerprint"
	ReasonNoRemote        = "no external playlist yet"
	ReasonChanged         = "fingerprint changed"
	ReasonUnchanged       = "fingerprint unchanged"
	ReasonNoSnapshot      = "no stored snapshot"
	ReasonSnapshotChanged = "snapshot changed"
	ReasonSnapshotSame    = "snapshot unchanged"
)

// ShouldSync reports whether playlist p needs reconciling against newFingerprint.
func ShouldSync(p types.SmartPlaylist, newFingerprint string, force bool) bool {
	return Evaluate(p, newFingerprint, force).Sync
}

// Evaluate is ShouldSync with the reason attached.
func Evaluate(p types.SmartPlaylist, newFingerprint string, force bool) Decision {
	switch {
	case force:
		return Decision{Sync: true, Reason: ReasonForced}
	case p.SpotifyPlaylistID == "":
		return Decision{Sync: true, Reason: ReasonNoRemote}
	case p.Fingerprint == "":
		return Decision{Sync: true, Reason: ReasonNeverSynced}
	case p.Fingerprint != newFingerprint:
		return Decision{Sync: true, Reason: ReasonChanged}
	default:
		return Decision{Sync: false, Reason: ReasonUnchanged}
	}
}

// ShouldMirror reports whether an inbound source must be re-read given the
// remote snapshot ID. forceRefresh bypasses the check.
func ShouldMirror(src types.MirrorSource, remoteSnapshotID string, forceRefresh bool) Decision {
	switch {
	case forceRefresh:
		return Decision{Sync: true, Reason: ReasonForced}
	case src.SnapshotID == "" || remoteSnapshotID == "":
		return Decision{Sync: true, Reason: ReasonNoSnapshot}
	case src.SnapshotID != remoteSnapshotID:
		return Decision{Sync: true, Reason: ReasonSnapshotChanged}
	default:
		return Decision{Sync: false, Reason: ReasonSnapshotSame}
	}
}
