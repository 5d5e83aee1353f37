// Package skillindex implements the scope.SkillRegistry contract of spec
// section 4.2 over a bleve full-text index, directly grounded on the
// teacher's internal/index/bleve.go (BM25 tool index) and
// internal/index/manager.go (single-owner-manager-with-mutex), generalized
// from indexing tool descriptions to indexing skill descriptions. The
// skill discovery corpus and embedding backends themselves are external
// collaborators out of scope per spec section 1; this package only
// provides the search/list/load interface spec 4.2 requires.
package skillindex

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"go.uber.org/zap"

	"mcpgateway/internal/scope"
)

// Skill is the corpus document shape indexed for search (spec 4.2
// SkillRegistry consumer).
type Skill struct {
	ID             string
	Name           string
	Description    string
	RequiredTools  []string
	SearchableText string
}

type skillDocument struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	SearchableText string `json:"searchable_text"`
}

// Index is a bleve-backed scope.SkillRegistry.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	logger *zap.Logger

	skills         map[string]*Skill
	availableTools map[string]bool // tools reachable from the current scope's ToolRegistry
}

// NewIndex opens or creates a bleve index under dataDir, mirroring
// NewBleveIndex's open-or-create fallback.
func NewIndex(dataDir string, logger *zap.Logger) (*Index, error) {
	path := filepath.Join(dataDir, "skills.bleve")

	idx, err := bleve.Open(path)
	if err != nil {
		logger.Info("skillindex: creating new index", zap.String("path", path))
		idx, err = createIndex(path)
		if err != nil {
			return nil, fmt.Errorf("skillindex: create index: %w", err)
		}
	}

	return &Index{
		index:          idx,
		logger:         logger,
		skills:         make(map[string]*Skill),
		availableTools: make(map[string]bool),
	}, nil
}

func createIndex(path string) (bleve.Index, error) {
	mapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	name := bleve.NewTextFieldMapping()
	name.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("name", name)

	desc := bleve.NewTextFieldMapping()
	desc.Analyzer = standard.Name
	doc.AddFieldMappingsAt("description", desc)

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = false
	doc.AddFieldMappingsAt("searchable_text", text)

	mapping.AddDocumentMapping("skill", doc)
	mapping.DefaultMapping = doc
	return bleve.New(path, mapping)
}

// IndexSkill adds or updates a skill document.
func (i *Index) IndexSkill(s *Skill) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.skills[s.ID] = s
	return i.index.Index(s.ID, &skillDocument{
		Name:           s.Name,
		Description:    s.Description,
		SearchableText: fmt.Sprintf("%s %s %s", s.Name, s.Description, s.SearchableText),
	})
}

// SetAvailableTools declares which qualified tool names are reachable,
// used by LoadSkill to compute missing/available splits (spec 4.2).
func (i *Index) SetAvailableTools(names []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.availableTools = make(map[string]bool, len(names))
	for _, n := range names {
		i.availableTools[n] = true
	}
}

// Search implements scope.SkillRegistry.
func (i *Index) Search(ctx context.Context, query string, opts scope.SkillSearchOptions) ([]scope.RankedSkill, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	result, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("skillindex: search: %w", err)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]scope.RankedSkill, 0, len(result.Hits))
	for _, hit := range result.Hits {
		s, ok := i.skills[hit.ID]
		if !ok {
			continue
		}
		out = append(out, scope.RankedSkill{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Score:       hit.Score,
		})
	}
	return out, nil
}

// LoadSkill implements scope.SkillRegistry.
func (i *Index) LoadSkill(ctx context.Context, id string) (*scope.LoadedSkill, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	s, ok := i.skills[id]
	if !ok {
		return nil, fmt.Errorf("skillindex: skill %q not found", id)
	}

	var available, missing []string
	for _, t := range s.RequiredTools {
		if i.availableTools[t] {
			available = append(available, t)
		} else {
			missing = append(missing, t)
		}
	}

	loaded := &scope.LoadedSkill{
		SkillID:        s.ID,
		AvailableTools: available,
		MissingTools:   missing,
		IsComplete:     len(missing) == 0,
	}
	if !loaded.IsComplete {
		loaded.Warning = fmt.Sprintf("%d required tool(s) unavailable in this scope", len(missing))
	}
	return loaded, nil
}

// ListSkills implements scope.SkillRegistry.
func (i *Index) ListSkills(ctx context.Context, opts scope.SkillListOptions) ([]scope.RankedSkill, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	limit := opts.Limit
	out := make([]scope.RankedSkill, 0, len(i.skills))
	for _, s := range i.skills {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, scope.RankedSkill{ID: s.ID, Name: s.Name, Description: s.Description})
	}
	return out, nil
}

// Close closes the underlying bleve index.
func (i *Index) Close() error { return i.index.Close() }
