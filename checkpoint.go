package iprange

// Checkpoint is checkpoint information for a saved export.
type Checkpoint struct {
	// When the export was last written.
	// Unix epoch second timestamp.
	LastWrittenUnix int64 `json:"last_written_unix"`

	// The number of rows (IPs, results or countries) in the export.
	Rows int `json:"rows"`
}

// AllCheckpoints is information for all export checkpoints.
type AllCheckpoints struct {
	// All checkpoints.
	// Key is the export name, value is the checkpoint.
	Checkpoints map[string]Checkpoint `json:"checkpoints"`
}
