package models

// StatVersion is the current layout version of Stat as persisted in the index.
const StatVersion = 1

// Unknown marks a numeric stat field whose value could not be determined.
const Unknown int64 = -1

// EntryType distinguishes files from directories.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// Valid reports whether t is one of the known entry types.
func (t EntryType) Valid() bool {
	return t == EntryFile || t == EntryDir
}

// Stat is a snapshot of filesystem metadata for one file or directory.
// Times are milliseconds since the Unix epoch.
type Stat struct {
	Version int            `json:"v"`
	Path    string         `json:"path"`
	Type    EntryType      `json:"type,omitempty"`
	Size    int64          `json:"size"`
	Ctime   int64          `json:"ctime"`
	Atime   int64          `json:"atime"`
	Mtime   int64          `json:"mtime"`
	Hash    string         `json:"hash,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// NewStat returns a Stat for path with every numeric field set to Unknown.
func NewStat(path string, typ EntryType) *Stat {
	return &Stat{
		Version: StatVersion,
		Path:    path,
		Type:    typ,
		Size:    Unknown,
		Ctime:   Unknown,
		Atime:   Unknown,
		Mtime:   Unknown,
	}
}

// Clone returns a deep copy of s.
func (s *Stat) Clone() *Stat {
	if s == nil {
		return nil
	}
	c := *s
	if s.Extra != nil {
		c.Extra = make(map[string]any, len(s.Extra))
		for k, v := range s.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}
