package media

// Track describes one elementary stream discovered in a container.
type Track struct {
	// ID is the container-level identifier (the PID for MPEG-TS).
	ID uint16
	// Index is the zero-based position of the track in the container.
	Index    int
	Type     StreamType
	Codec    string
	Kind     string
	Label    string
	Language string
}

// Tracks is an immutable snapshot of the tracks a demuxer exposes.
type Tracks struct {
	tracks []Track
}

// NewTracks copies ts into a new snapshot.
func NewTracks(ts []Track) *Tracks {
	return &Tracks{tracks: append([]Track(nil), ts...)}
}

// Len returns the number of tracks.
func (t *Tracks) Len() int { return len(t.tracks) }

// All returns a copy of the tracks in container order.
func (t *Tracks) All() []Track {
	return append([]Track(nil), t.tracks...)
}

// ByID returns the track with the given container id.
func (t *Tracks) ByID(id uint16) (Track, bool) {
	for _, tr := range t.tracks {
		if tr.ID == id {
			return tr, true
		}
	}
	return Track{}, false
}
