package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/lpappas98/claw-control-center/internal/logging"
	"github.com/lpappas98/claw-control-center/internal/model"
)

type projectDoc struct {
	Version  int              `json:"version"`
	Projects []*model.Project `json:"projects"`
}

// ProjectStore is the durable record of projects tasks are grouped
// under.
type ProjectStore struct {
	mu   sync.RWMutex
	path string
	flk  *flock.Flock
	doc  *projectDoc
}

// OpenProjects opens the project store at path.
func OpenProjects(path string, log *logging.Logger) (*ProjectStore, error) {
	flk, err := lockFile(path)
	if err != nil {
		return nil, err
	}

	p := &ProjectStore{path: path, flk: flk, doc: &projectDoc{Version: 1}}

	doc := &projectDoc{Version: 1}
	if loadOrEmpty(path, doc, log) {
		p.doc = doc
	}
	if p.doc.Projects == nil {
		p.doc.Projects = make([]*model.Project, 0)
	}
	return p, nil
}

// Close releases the store's file lock.
func (p *ProjectStore) Close() error {
	return p.flk.Unlock()
}

// Add persists a new project, generating id and timestamp if unset.
func (p *ProjectStore) Add(proj model.Project) (*model.Project, error) {
	if proj.ID == "" {
		proj.ID = uuid.NewString()
	}
	if proj.CreatedAt.IsZero() {
		proj.CreatedAt = time.Now()
	}
	if err := model.Validate(&proj); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.doc.Projects {
		if existing.ID == proj.ID {
			return nil, fmt.Errorf("project %s already exists", proj.ID)
		}
	}
	p.doc.Projects = append(p.doc.Projects, &proj)
	if err := writeDoc(p.path, p.doc); err != nil {
		p.doc.Projects = p.doc.Projects[:len(p.doc.Projects)-1]
		return nil, err
	}
	cp := proj
	return &cp, nil
}

// Get returns the project with the given id.
func (p *ProjectStore) Get(id string) (*model.Project, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, proj := range p.doc.Projects {
		if proj.ID == id {
			cp := *proj
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
}

// List returns all projects ordered by name.
func (p *ProjectStore) List() []*model.Project {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*model.Project, 0, len(p.doc.Projects))
	for _, proj := range p.doc.Projects {
		cp := *proj
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
