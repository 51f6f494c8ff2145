package models

// ManifestEntry is one artifact and its digest.
type ManifestEntry struct {
	Filename string
	SHA256   string
}

// RunManifest lists the digests of every artifact produced by a run.
type RunManifest struct {
	Path    string
	Entries []ManifestEntry
}
