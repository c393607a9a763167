package model

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/types"
)

// Manager owns the set of BPMN models indexed by version. The index is
// copied on write, so readers never block on AddModel/RemoveModel.
type Manager struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewManager creates an empty model manager.
func NewManager() *Manager {
	return &Manager{models: make(map[string]*Model)}
}

// AddModel registers a model under its version. The model is validated
// before it becomes visible.
func (mm *Manager) AddModel(m *Model) error {
	if m == nil || m.Version() == "" {
		return types.NewWorkflowError("model", types.CodeInvalidModel, "model version is missing")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	next := make(map[string]*Model, len(mm.models)+1)
	for v, existing := range mm.models {
		next[v] = existing
	}
	next[m.Version()] = m
	mm.models = next
	return nil
}

// RemoveModel drops the model with the given version.
func (mm *Manager) RemoveModel(version string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	next := make(map[string]*Model, len(mm.models))
	for v, existing := range mm.models {
		if v != version {
			next[v] = existing
		}
	}
	mm.models = next
}

// Model resolves a model by exact version.
func (mm *Manager) Model(version string) (*Model, error) {
	mm.mu.RLock()
	m, ok := mm.models[version]
	mm.mu.RUnlock()
	if !ok {
		return nil, types.NewWorkflowError("model", types.CodeUndefinedModel,
			"no model found for version '"+version+"'")
	}
	return m, nil
}

// Versions returns all registered versions, sorted.
func (mm *Manager) Versions() []string {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	versions := make([]string, 0, len(mm.models))
	for v := range mm.models {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// ModelByWorkitem resolves the model for a workitem. A $modelversion
// starting with '(' or '^' is treated as a regular expression and the
// highest sorted matching version wins. Without a resolvable version the
// workitem's $workflowgroup selects the highest version listing that
// group.
func (mm *Manager) ModelByWorkitem(workitem *document.ItemCollection) (*Model, error) {
	version := workitem.ModelVersion()

	if isVersionPattern(version) {
		re, err := regexp.Compile(version)
		if err != nil {
			return nil, types.WrapWorkflowError("model", types.CodeInvalidModel,
				"invalid model version pattern '"+version+"'", err)
		}
		if m := mm.highestMatch(func(v string, _ *Model) bool { return re.MatchString(v) }); m != nil {
			return m, nil
		}
		return nil, types.NewWorkflowError("model", types.CodeUndefinedModel,
			"no model matches version pattern '"+version+"'")
	}

	if version != "" {
		if m, err := mm.Model(version); err == nil {
			return m, nil
		}
	}

	if group := workitem.WorkflowGroup(); group != "" {
		if m := mm.highestMatch(func(_ string, candidate *Model) bool {
			return contains(candidate.Definition.Groups, group)
		}); m != nil {
			return m, nil
		}
		return nil, types.NewWorkflowError("model", types.CodeUndefinedModel,
			"no model found for workflow group '"+group+"'")
	}

	return nil, types.NewWorkflowError("model", types.CodeUndefinedModel,
		"no model found for version '"+version+"'")
}

// highestMatch returns the model with the highest sorted version for which
// the predicate holds, or nil.
func (mm *Manager) highestMatch(match func(version string, m *Model) bool) *Model {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	var bestVersion string
	var best *Model
	for v, m := range mm.models {
		if !match(v, m) {
			continue
		}
		if best == nil || strings.Compare(v, bestVersion) > 0 {
			bestVersion = v
			best = m
		}
	}
	return best
}

func isVersionPattern(version string) bool {
	return strings.HasPrefix(version, "(") || strings.HasPrefix(version, "^")
}
