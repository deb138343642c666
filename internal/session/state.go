package session

// State is the lifecycle phase of a download session.
type State int

const (
	// StateRequesting means a request has been issued and no body bytes
	// have arrived for it yet.
	StateRequesting State = iota
	// StateStreaming means body bytes are being appended to the temp file.
	StateStreaming
	// StateRetrying means a transient failure is being retried against the
	// same target from the preserved offset.
	StateRetrying
	// StateRedirecting means the server pointed elsewhere and the session
	// is restarting against the new target.
	StateRedirecting
	// StateCommitting means the body completed and the temp file is being
	// moved into place.
	StateCommitting
	// StateAborted means the caller canceled the download.
	StateAborted
	// StateDone means the file was committed to its final path.
	StateDone
	// StateFailed means the download ended with an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateRetrying:
		return "retrying"
	case StateRedirecting:
		return "redirecting"
	case StateCommitting:
		return "committing"
	case StateAborted:
		return "aborted"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the session has stopped for good.
func (s State) Terminal() bool {
	return s == StateAborted || s == StateDone || s == StateFailed
}

// Result is the outcome reported through the completion callback.
type Result int

const (
	// Ok means the file is in place at its final path.
	Ok Result = iota
	// FileNotFound means the remote said the resource does not exist.
	FileNotFound
	// FileLocked means the finished file could not replace the final path.
	FileLocked
	// DownloadFailed covers every other download error.
	DownloadFailed
	// FileOpenFailed means the temp file could not be opened, so no
	// request was ever issued.
	FileOpenFailed
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case FileNotFound:
		return "file not found"
	case FileLocked:
		return "file locked"
	case DownloadFailed:
		return "download failed"
	case FileOpenFailed:
		return "file open failed"
	}
	return "unknown"
}
