package retention

// State is a step of the per-root sweep.
type State int

const (
	ScanningTransients State = iota
	DeletingTransients
	CheckingSpace
	ScanningCandidates
	DeletingOldest
	Done
	AbortedAnomaly
	AbortedMissing
)

var stateNames = [...]string{
	ScanningTransients: "scanning-transients",
	DeletingTransients: "deleting-transients",
	CheckingSpace:      "checking-space",
	ScanningCandidates: "scanning-candidates",
	DeletingOldest:     "deleting-oldest",
	Done:               "done",
	AbortedAnomaly:     "aborted-anomaly",
	AbortedMissing:     "aborted-missing",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether the sweep of a root has ended.
func (s State) Terminal() bool {
	return s == Done || s == AbortedAnomaly || s == AbortedMissing
}
