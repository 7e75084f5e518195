package store

import "time"

type File struct {
	ID          int64
	Path        string
	Hash        string
	LastIndexed time.Time
}

// Declaration is one indexed declaration and its freshness state.
type Declaration struct {
	ID     int64
	FileID int64
	Path   string
	// NodeID is the syntax node the row was last indexed from. It is only
	// meaningful in the process that indexed it.
	NodeID      uint64
	Name        string
	Type        string
	Ordinal     int // among declarations in the file with the same name and type
	Depth       int
	StartByte   int
	EndByte     int
	Fingerprint string
	Dirty       bool
	Generation  int
}

// Invalidation is one entry of a declaration's invalidation log.
type Invalidation struct {
	ID            int64
	DeclarationID int64
	Generation    int
	External      bool
	RecordedAt    time.Time
}

// IndexResult summarizes one IndexTree call.
type IndexResult struct {
	File      *File
	Indexed   int // declarations in the tree
	Added     int
	Changed   int // fingerprint differed from the stored row; now dirty
	Removed   int
	Unchanged int
}
