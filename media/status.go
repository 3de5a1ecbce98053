package media

// PipelineStatus is the outcome reported by asynchronous demuxer operations.
type PipelineStatus int

// Pipeline status codes. StatusOK is never passed on an error path.
const (
	StatusOK PipelineStatus = iota
	DemuxerErrorCouldNotOpen
	DemuxerErrorCouldNotParse
	DemuxerErrorNoSupportedStreams
	DemuxerErrorReadFailed
	PipelineErrorAbort
	PipelineErrorSeekFailed
)

var statusNames = [...]string{
	StatusOK:                       "ok",
	DemuxerErrorCouldNotOpen:       "demuxer: could not open",
	DemuxerErrorCouldNotParse:      "demuxer: could not parse",
	DemuxerErrorNoSupportedStreams: "demuxer: no supported streams",
	DemuxerErrorReadFailed:         "demuxer: read failed",
	PipelineErrorAbort:             "pipeline: aborted",
	PipelineErrorSeekFailed:        "pipeline: seek failed",
}

func (s PipelineStatus) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown status"
}

// OK reports whether s is StatusOK.
func (s PipelineStatus) OK() bool { return s == StatusOK }

// Err returns nil for StatusOK and a StatusError otherwise.
func (s PipelineStatus) Err() error {
	if s == StatusOK {
		return nil
	}
	return StatusError{Status: s}
}

// StatusError adapts a failed PipelineStatus to the error interface.
type StatusError struct {
	Status PipelineStatus
}

func (e StatusError) Error() string { return e.Status.String() }
