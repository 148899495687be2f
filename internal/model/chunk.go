package model

import (
	"sort"
	"strconv"
	"strings"
)

// DistilledChunkName marks a pseudo chunk holding pre-summarized content.
const DistilledChunkName = "Distilled Content"

const chunkPartSep = "-part-"

type Chunk struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	FileID    string `json:"file_id"`
	FileName  string `json:"file_name"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	Summary   string `json:"summary"`
	Size      int    `json:"size"`
	Ctime     int64  `json:"ctime"`
	Mtime     int64  `json:"mtime"`
}

func (c *Chunk) IsDistilled() bool {
	return c.Name == DistilledChunkName
}

// ChunkName builds the deterministic name of the n-th part (1-based) of a file.
func ChunkName(fileBase string, n int) string {
	return fileBase + chunkPartSep + strconv.Itoa(n)
}

// ChunkOrdinal recovers n from "<file>-part-<n>", or -1 when the name does not follow it.
func ChunkOrdinal(name string) int {
	idx := strings.LastIndex(name, chunkPartSep)
	if idx < 0 {
		return -1
	}
	n, err := strconv.Atoi(name[idx+len(chunkPartSep):])
	if err != nil {
		return -1
	}
	return n
}

// SortChunks orders chunks of one file by ordinal. Names that carry no ordinal
// fall back to lexical order after the numbered ones.
func SortChunks(chunks []Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return ChunkLess(&chunks[i], &chunks[j])
	})
}

func ChunkLess(a, b *Chunk) bool {
	oa, ob := ChunkOrdinal(a.Name), ChunkOrdinal(b.Name)
	switch {
	case oa >= 0 && ob >= 0:
		return oa < ob
	case oa >= 0:
		return true
	case ob >= 0:
		return false
	default:
		return a.Name < b.Name
	}
}

// ChunkDraft is a segment produced by the segmenter before it is persisted.
type ChunkDraft struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Summary string `json:"summary"`
	Size    int    `json:"size"`
}

type ChunkFilter struct {
	FileIDs []string
	// ExcludeDistilled skips pseudo chunks created from distilled content.
	ExcludeDistilled bool
}
