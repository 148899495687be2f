package question

import (
	"context"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/model"
	"github.com/xxxsen/dsforge/internal/provenance"
)

// Unit is one generation input: the anchor chunk the questions are stored against
// plus whatever surrounding text the strategy feeds to the model.
type Unit struct {
	Context *provenance.Context
	FileID  string
	GaPairs []model.GaPair
}

func (u Unit) Anchor() *model.Chunk {
	return u.Context.Anchor
}

func (u Unit) Metadata() *model.QuestionMetadata {
	switch u.Context.Type {
	case model.QuestionTypeContextual:
		meta := &model.QuestionMetadata{Type: model.QuestionTypeContextual}
		if u.Context.Previous != nil {
			meta.PreviousChunkID = u.Context.Previous.ID
		}
		if u.Context.Next != nil {
			meta.NextChunkID = u.Context.Next.ID
		}
		return meta
	case model.QuestionTypeGlobal:
		return &model.QuestionMetadata{Type: model.QuestionTypeGlobal, FileID: u.FileID}
	default:
		return &model.QuestionMetadata{Type: model.QuestionTypeLocal}
	}
}

// unitSource loads project chunks and files once per task and derives units from them.
type unitSource struct {
	ctx            context.Context
	projectID      string
	questionLength int
	chunks         ChunkLister
	files          FileLister
	gaPairs        GaPairLister

	loaded    bool
	byFile    [][]model.Chunk
	gaByFile  map[string][]model.GaPair
	fileIndex map[string]model.File
}

func (s *unitSource) load() error {
	if s.loaded {
		return nil
	}
	chunks, err := s.chunks.ListByProjectID(s.ctx, s.projectID, model.ChunkFilter{ExcludeDistilled: true})
	if err != nil {
		return err
	}
	// chunks arrive ordered by file name then ordinal
	var group []model.Chunk
	for _, c := range chunks {
		if len(group) > 0 && group[0].FileID != c.FileID {
			s.byFile = append(s.byFile, group)
			group = nil
		}
		group = append(group, c)
	}
	if len(group) > 0 {
		s.byFile = append(s.byFile, group)
	}
	s.gaByFile = make(map[string][]model.GaPair)
	s.fileIndex = make(map[string]model.File)
	s.loaded = true
	return nil
}

func (s *unitSource) pairs(fileID string) []model.GaPair {
	if s.gaPairs == nil {
		return nil
	}
	if items, ok := s.gaByFile[fileID]; ok {
		return items
	}
	items, err := s.gaPairs.ListActiveByFileID(s.ctx, fileID)
	if err != nil {
		logutil.GetLogger(s.ctx).Warn("load ga pairs failed, generate without them", zap.String("file_id", fileID), zap.Error(err))
		items = nil
	}
	s.gaByFile[fileID] = items
	return items
}

func (s *unitSource) localUnits() ([]Unit, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	var out []Unit
	for _, group := range s.byFile {
		for i := range group {
			anchor := group[i]
			out = append(out, Unit{
				Context: localContext(&anchor),
				FileID:  anchor.FileID,
				GaPairs: s.pairs(anchor.FileID),
			})
		}
	}
	return out, nil
}

// contextualUnits pairs every chunk with its file-scoped neighbours. A chunk with
// neither neighbour has no context to add and is skipped.
func (s *unitSource) contextualUnits() ([]Unit, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	var out []Unit
	for _, group := range s.byFile {
		for i := range group {
			c := &provenance.Context{Type: model.QuestionTypeContextual}
			anchor := group[i]
			c.Anchor = &anchor
			if i > 0 {
				prev := group[i-1]
				c.Previous = &prev
			}
			if i+1 < len(group) {
				next := group[i+1]
				c.Next = &next
			}
			if c.Previous == nil && c.Next == nil {
				logutil.GetLogger(s.ctx).Debug("skip contextual unit without neighbours", zap.String("chunk_id", anchor.ID))
				continue
			}
			out = append(out, Unit{Context: c, FileID: anchor.FileID})
		}
	}
	return out, nil
}

// globalUnits yields one unit per file that has a table of contents. The first
// chunk of the file is the anchor.
func (s *unitSource) globalUnits() ([]Unit, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	if err := s.loadFiles(); err != nil {
		return nil, err
	}
	var out []Unit
	for _, group := range s.byFile {
		fileID := group[0].FileID
		file, ok := s.fileIndex[fileID]
		if !ok || file.Toc == "" {
			logutil.GetLogger(s.ctx).Debug("skip global unit without toc", zap.String("file_id", fileID))
			continue
		}
		anchor := group[0]
		out = append(out, Unit{
			Context: &provenance.Context{
				Type:       model.QuestionTypeGlobal,
				Anchor:     &anchor,
				FileChunks: group,
				Toc:        file.Toc,
			},
			FileID: fileID,
		})
	}
	return out, nil
}

func (s *unitSource) loadFiles() error {
	if len(s.fileIndex) > 0 {
		return nil
	}
	files, err := s.files.ListByProject(s.ctx, s.projectID)
	if err != nil {
		return err
	}
	for _, f := range files {
		s.fileIndex[f.ID] = f
	}
	return nil
}

func runeCount(s string) int {
	return utf8.RuneCountInString(s)
}

func localContext(anchor *model.Chunk) *provenance.Context {
	return &provenance.Context{Type: model.QuestionTypeLocal, Anchor: anchor}
}
