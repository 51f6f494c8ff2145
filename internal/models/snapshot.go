package models

// SnapshotResult lists the inventory files a collector wrote and the
// categories it could not save.
type SnapshotResult struct {
	OutputDir string
	Saved     []string
	Failed    map[string]error
}
