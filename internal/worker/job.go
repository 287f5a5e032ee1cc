package worker

// Job names a unit of work run by the worker. Jobs carry no payload: they
// always run against the configuration current at the time they start.
type Job string

const (
	Snapshot  Job = "snapshot"
	Replicate Job = "replicate"
	Sweep     Job = "sweep"
	// Reload re-reads the configuration file.
	Reload Job = "reload"
)
