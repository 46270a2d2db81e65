package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"workflow-scheme/backend/pkg/models"
)

type memoryState struct {
	seq        map[string]int64
	schemes    map[int64]models.Scheme
	configs    map[models.Generation]map[int64]models.SchemeConfig
	nodes      map[int64]models.Node
	transforms map[int64]models.Transform
	tconfigs   map[int64]models.TransformConfig
	codes      map[string]models.ConfigCode
	projects   map[int64]models.ProjectConfig
}

func newMemoryState() *memoryState {
	return &memoryState{
		seq:     map[string]int64{},
		schemes: map[int64]models.Scheme{},
		configs: map[models.Generation]map[int64]models.SchemeConfig{
			models.Draft: {},
			models.Live:  {},
		},
		nodes:      map[int64]models.Node{},
		transforms: map[int64]models.Transform{},
		tconfigs:   map[int64]models.TransformConfig{},
		codes:      map[string]models.ConfigCode{},
		projects:   map[int64]models.ProjectConfig{},
	}
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		seq:        cloneMap(st.seq),
		schemes:    cloneMap(st.schemes),
		configs:    make(map[models.Generation]map[int64]models.SchemeConfig, len(st.configs)),
		nodes:      cloneMap(st.nodes),
		transforms: cloneMap(st.transforms),
		tconfigs:   cloneMap(st.tconfigs),
		codes:      cloneMap(st.codes),
		projects:   cloneMap(st.projects),
	}
	for gen, m := range st.configs {
		c.configs[gen] = cloneMap(m)
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *memoryState) next(table string) int64 {
	st.seq[table]++
	return st.seq[table]
}

func (st *memoryState) generation(gen models.Generation) (map[int64]models.SchemeConfig, error) {
	m, ok := st.configs[gen]
	if !ok {
		return nil, fmt.Errorf("repository: unknown generation %q", gen)
	}
	return m, nil
}

type memoryRoot struct {
	mu    sync.Mutex
	state *memoryState
}

// MemoryRepository is an in-memory Repository. Every write runs against a copy of
// the state that replaces the shared state only when the write succeeds; InTx
// extends that copy over the whole callback.
type MemoryRepository struct {
	root *memoryRoot
	tx   *memoryState
	now  func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{root: &memoryRoot{state: newMemoryState()}, now: time.Now}
}

func (m *MemoryRepository) read(fn func(st *memoryState) error) error {
	if m.tx != nil {
		return fn(m.tx)
	}
	m.root.mu.Lock()
	defer m.root.mu.Unlock()
	return fn(m.root.state)
}

func (m *MemoryRepository) write(fn func(st *memoryState) error) error {
	if m.tx != nil {
		return fn(m.tx)
	}
	m.root.mu.Lock()
	defer m.root.mu.Unlock()
	next := m.root.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	m.root.state = next
	return nil
}

// Ping always succeeds.
func (m *MemoryRepository) Ping(context.Context) error { return nil }

// InTx runs fn against a private copy of the state and publishes it when fn succeeds.
func (m *MemoryRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if m.tx != nil {
		return fn(m)
	}
	m.root.mu.Lock()
	defer m.root.mu.Unlock()
	next := m.root.state.clone()
	if err := fn(&MemoryRepository{root: m.root, tx: next, now: m.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.root.state = next
	return nil
}

// --- schemes ---

func (m *MemoryRepository) CreateScheme(_ context.Context, scheme *models.Scheme) error {
	return m.write(func(st *memoryState) error {
		for _, s := range st.schemes {
			if s.OrganizationID == scheme.OrganizationID && s.Name == scheme.Name {
				return fmt.Errorf("repository: scheme name %q taken: %w", scheme.Name, ErrPersistence)
			}
		}
		if scheme.Status == "" {
			scheme.Status = models.SchemeStatusCreate
		}
		if scheme.DeployStatus == "" {
			scheme.DeployStatus = models.DeployStatusNone
		}
		now := m.now()
		scheme.ID = st.next("scheme")
		scheme.Version = 1
		scheme.CreatedAt, scheme.UpdatedAt = now, now
		st.schemes[scheme.ID] = *scheme
		return nil
	})
}

func (m *MemoryRepository) GetScheme(_ context.Context, orgID, schemeID int64) (*models.Scheme, error) {
	var out *models.Scheme
	err := m.read(func(st *memoryState) error {
		s, ok := st.schemes[schemeID]
		if !ok || s.OrganizationID != orgID {
			return fmt.Errorf("repository: scheme %d: %w", schemeID, ErrNotFound)
		}
		out = &s
		return nil
	})
	return out, err
}

func (m *MemoryRepository) FindSchemeByName(_ context.Context, orgID int64, name string) (*models.Scheme, error) {
	var out *models.Scheme
	err := m.read(func(st *memoryState) error {
		for _, s := range st.schemes {
			if s.OrganizationID == orgID && s.Name == name {
				out = &s
				return nil
			}
		}
		return fmt.Errorf("repository: scheme %q: %w", name, ErrNotFound)
	})
	return out, err
}

func (m *MemoryRepository) ListSchemes(_ context.Context, orgID int64, filter models.SchemeFilter) ([]*models.Scheme, error) {
	needle := strings.ToLower(filter.Name)
	var out []*models.Scheme
	err := m.read(func(st *memoryState) error {
		for _, s := range st.schemes {
			if s.OrganizationID != orgID || !strings.Contains(strings.ToLower(s.Name), needle) {
				continue
			}
			out = append(out, &s)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (m *MemoryRepository) ListSchemesByIDs(_ context.Context, orgID int64, ids []int64) ([]*models.Scheme, error) {
	var out []*models.Scheme
	err := m.read(func(st *memoryState) error {
		for _, id := range ids {
			if s, ok := st.schemes[id]; ok && s.OrganizationID == orgID {
				out = append(out, &s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (m *MemoryRepository) UpdateScheme(_ context.Context, scheme *models.Scheme) error {
	return m.write(func(st *memoryState) error {
		cur, ok := st.schemes[scheme.ID]
		if !ok || cur.OrganizationID != scheme.OrganizationID {
			return fmt.Errorf("repository: scheme %d: %w", scheme.ID, ErrNotFound)
		}
		if cur.Version != scheme.Version {
			return fmt.Errorf("repository: scheme %d: %w", scheme.ID, ErrConflict)
		}
		for _, s := range st.schemes {
			if s.ID != cur.ID && s.OrganizationID == cur.OrganizationID && s.Name == scheme.Name {
				return fmt.Errorf("repository: scheme name %q taken: %w", scheme.Name, ErrPersistence)
			}
		}
		cur.Name, cur.Description = scheme.Name, scheme.Description
		cur.Version++
		cur.UpdatedAt = m.now()
		st.schemes[cur.ID] = cur
		scheme.Version, scheme.UpdatedAt = cur.Version, cur.UpdatedAt
		return nil
	})
}

func (m *MemoryRepository) SetSchemeStatus(_ context.Context, orgID, schemeID int64, status models.SchemeStatus) error {
	return m.write(func(st *memoryState) error {
		cur, ok := st.schemes[schemeID]
		if !ok || cur.OrganizationID != orgID {
			return fmt.Errorf("repository: set scheme status affected 0 rows: %w", ErrPersistence)
		}
		cur.Status = status
		cur.Version++
		cur.UpdatedAt = m.now()
		st.schemes[schemeID] = cur
		return nil
	})
}

func (m *MemoryRepository) ClaimDeploy(_ context.Context, orgID, schemeID, expectedVersion int64) (*models.Scheme, error) {
	var out *models.Scheme
	err := m.write(func(st *memoryState) error {
		cur, ok := st.schemes[schemeID]
		if !ok || cur.OrganizationID != orgID {
			return fmt.Errorf("repository: scheme %d: %w", schemeID, ErrNotFound)
		}
		if cur.Version != expectedVersion || cur.DeployStatus == models.DeployStatusDoing {
			return fmt.Errorf("repository: scheme %d: %w", schemeID, ErrConflict)
		}
		cur.Status = models.SchemeStatusActive
		cur.DeployStatus = models.DeployStatusDoing
		cur.DeployProgress = 0
		cur.Version++
		cur.UpdatedAt = m.now()
		st.schemes[schemeID] = cur
		out = &cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MemoryRepository) UpdateDeployProgress(_ context.Context, orgID, schemeID int64, progress int) (bool, error) {
	updated := false
	err := m.write(func(st *memoryState) error {
		cur, ok := st.schemes[schemeID]
		if !ok || cur.OrganizationID != orgID {
			return nil
		}
		cur.DeployProgress = progress
		if progress == 100 {
			cur.DeployStatus = models.DeployStatusDone
		}
		cur.UpdatedAt = m.now()
		st.schemes[schemeID] = cur
		updated = true
		return nil
	})
	return updated, err
}

func (m *MemoryRepository) DeleteScheme(_ context.Context, orgID, schemeID int64) error {
	return m.write(func(st *memoryState) error {
		cur, ok := st.schemes[schemeID]
		if !ok || cur.OrganizationID != orgID {
			return fmt.Errorf("repository: delete scheme affected 0 rows: %w", ErrPersistence)
		}
		delete(st.schemes, schemeID)
		return nil
	})
}

// --- scheme configs ---

func sortConfigs(configs []*models.SchemeConfig) {
	sort.Slice(configs, func(i, j int) bool {
		a, b := configs[i], configs[j]
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ID < b.ID
	})
}

func (m *MemoryRepository) GetConfig(_ context.Context, gen models.Generation, orgID, schemeID, issueTypeID int64) (*models.SchemeConfig, error) {
	var out *models.SchemeConfig
	err := m.read(func(st *memoryState) error {
		rows, err := st.generation(gen)
		if err != nil {
			return err
		}
		for _, c := range rows {
			if c.OrganizationID != orgID || c.SchemeID != schemeID {
				continue
			}
			if !c.IsDefault && c.IssueTypeID == issueTypeID {
				out = &c
				return nil
			}
			if c.IsDefault && out == nil {
				out = &c
			}
		}
		if out == nil {
			return fmt.Errorf("repository: config for issue type %d: %w", issueTypeID, ErrNotFound)
		}
		return nil
	})
	return out, err
}

func (m *MemoryRepository) GetDefaultConfig(_ context.Context, gen models.Generation, orgID, schemeID int64) (*models.SchemeConfig, error) {
	var out *models.SchemeConfig
	err := m.read(func(st *memoryState) error {
		rows, err := st.generation(gen)
		if err != nil {
			return err
		}
		for _, c := range rows {
			if c.OrganizationID == orgID && c.SchemeID == schemeID && c.IsDefault {
				out = &c
				return nil
			}
		}
		return fmt.Errorf("repository: default config of scheme %d: %w", schemeID, ErrNotFound)
	})
	return out, err
}

func (m *MemoryRepository) ListConfigs(_ context.Context, gen models.Generation, orgID, schemeID int64) ([]*models.SchemeConfig, error) {
	var out []*models.SchemeConfig
	err := m.read(func(st *memoryState) error {
		rows, err := st.generation(gen)
		if err != nil {
			return err
		}
		for _, c := range rows {
			if c.OrganizationID == orgID && c.SchemeID == schemeID {
				out = append(out, &c)
			}
		}
		return nil
	})
	sortConfigs(out)
	return out, err
}

func insertConfig(st *memoryState, gen models.Generation, cfg *models.SchemeConfig) error {
	rows, err := st.generation(gen)
	if err != nil {
		return err
	}
	for _, c := range rows {
		if c.SchemeID != cfg.SchemeID {
			continue
		}
		if c.IsDefault && cfg.IsDefault {
			return fmt.Errorf("repository: scheme %d already has a default entry: %w", cfg.SchemeID, ErrPersistence)
		}
		if !c.IsDefault && !cfg.IsDefault && c.IssueTypeID == cfg.IssueTypeID {
			return fmt.Errorf("repository: issue type %d already mapped: %w", cfg.IssueTypeID, ErrPersistence)
		}
	}
	if cfg.IsDefault {
		cfg.IssueTypeID = 0
	}
	cfg.ID = st.next(string(gen) + "_config")
	rows[cfg.ID] = *cfg
	return nil
}

func (m *MemoryRepository) InsertConfig(_ context.Context, gen models.Generation, cfg *models.SchemeConfig) error {
	return m.write(func(st *memoryState) error {
		return insertConfig(st, gen, cfg)
	})
}

func (m *MemoryRepository) ReplaceForStateMachine(_ context.Context, gen models.Generation, orgID, schemeID, stateMachineID int64, entries []*models.SchemeConfig) error {
	return m.write(func(st *memoryState) error {
		rows, err := st.generation(gen)
		if err != nil {
			return err
		}
		incoming := make(map[int64]bool, len(entries))
		for _, e := range entries {
			incoming[e.IssueTypeID] = true
		}
		for id, c := range rows {
			if c.OrganizationID != orgID || c.SchemeID != schemeID || c.IsDefault {
				continue
			}
			if c.StateMachineID == stateMachineID || incoming[c.IssueTypeID] {
				delete(rows, id)
			}
		}
		for _, e := range entries {
			e.OrganizationID, e.SchemeID, e.StateMachineID, e.IsDefault = orgID, schemeID, stateMachineID, false
			if err := insertConfig(st, gen, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *MemoryRepository) DeleteForStateMachine(_ context.Context, gen models.Generation, orgID, schemeID, stateMachineID int64) (int64, error) {
	var n int64
	err := m.write(func(st *memoryState) error {
		rows, err := st.generation(gen)
		if err != nil {
			return err
		}
		for id, c := range rows {
			if c.OrganizationID == orgID && c.SchemeID == schemeID && c.StateMachineID == stateMachineID && !c.IsDefault {
				delete(rows, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *MemoryRepository) UpdateDefaultStateMachine(_ context.Context, gen models.Generation, orgID, schemeID, stateMachineID int64) error {
	return m.write(func(st *memoryState) error {
		rows, err := st.generation(gen)
		if err != nil {
			return err
		}
		for id, c := range rows {
			if c.OrganizationID == orgID && c.SchemeID == schemeID && c.IsDefault {
				c.StateMachineID = stateMachineID
				rows[id] = c
				return nil
			}
		}
		return fmt.Errorf("repository: update default config affected 0 rows: %w", ErrPersistence)
	})
}

func (m *MemoryRepository) DeleteConfigs(_ context.Context, gen models.Generation, orgID, schemeID int64) (int64, error) {
	var n int64
	err := m.write(func(st *memoryState) error {
		rows, err := st.generation(gen)
		if err != nil {
			return err
		}
		for id, c := range rows {
			if c.OrganizationID == orgID && c.SchemeID == schemeID {
				delete(rows, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *MemoryRepository) ListSchemeIDsReferencing(_ context.Context, gen models.Generation, orgID, stateMachineID int64) ([]int64, error) {
	var ids []int64
	err := m.read(func(st *memoryState) error {
		rows, err := st.generation(gen)
		if err != nil {
			return err
		}
		for _, c := range rows {
			if c.OrganizationID == orgID && c.StateMachineID == stateMachineID && !slices.Contains(ids, c.SchemeID) {
				ids = append(ids, c.SchemeID)
			}
		}
		return nil
	})
	slices.Sort(ids)
	return ids, err
}

// --- transforms ---

func (m *MemoryRepository) CreateNode(_ context.Context, node *models.Node) error {
	return m.write(func(st *memoryState) error {
		if node.Type == "" {
			node.Type = models.NodeTypeCustom
		}
		node.ID = st.next("node")
		st.nodes[node.ID] = *node
		return nil
	})
}

func (m *MemoryRepository) GetNode(_ context.Context, orgID, nodeID int64) (*models.Node, error) {
	var out *models.Node
	err := m.read(func(st *memoryState) error {
		n, ok := st.nodes[nodeID]
		if !ok || n.OrganizationID != orgID {
			return fmt.Errorf("repository: node %d: %w", nodeID, ErrNotFound)
		}
		out = &n
		return nil
	})
	return out, err
}

func (m *MemoryRepository) ListNodes(_ context.Context, orgID, stateMachineID int64) ([]*models.Node, error) {
	var out []*models.Node
	err := m.read(func(st *memoryState) error {
		for _, n := range st.nodes {
			if n.OrganizationID == orgID && n.StateMachineID == stateMachineID {
				out = append(out, &n)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (m *MemoryRepository) CreateTransform(_ context.Context, t *models.Transform) error {
	return m.write(func(st *memoryState) error {
		if t.Type == "" {
			t.Type = models.TransformTypeCustom
		}
		if t.ConditionStrategy == "" {
			t.ConditionStrategy = models.ConditionStrategyAll
		}
		t.ID = st.next("transform")
		st.transforms[t.ID] = *t
		return nil
	})
}

func (m *MemoryRepository) GetTransform(_ context.Context, orgID, transformID int64) (*models.Transform, error) {
	var out *models.Transform
	err := m.read(func(st *memoryState) error {
		t, ok := st.transforms[transformID]
		if !ok || t.OrganizationID != orgID {
			return fmt.Errorf("repository: transform %d: %w", transformID, ErrNotFound)
		}
		out = &t
		return nil
	})
	return out, err
}

func (m *MemoryRepository) ListTransforms(_ context.Context, orgID, stateMachineID int64) ([]*models.Transform, error) {
	var out []*models.Transform
	err := m.read(func(st *memoryState) error {
		for _, t := range st.transforms {
			if t.OrganizationID == orgID && t.StateMachineID == stateMachineID {
				out = append(out, &t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (m *MemoryRepository) CreateTransformConfig(_ context.Context, cfg *models.TransformConfig) error {
	return m.write(func(st *memoryState) error {
		cfg.ID = st.next("transform_config")
		st.tconfigs[cfg.ID] = *cfg
		return nil
	})
}

func (m *MemoryRepository) ListTransformConfigs(_ context.Context, orgID int64, transformIDs []int64, kind models.ConfigKind) ([]*models.TransformConfig, error) {
	var out []*models.TransformConfig
	err := m.read(func(st *memoryState) error {
		for _, c := range st.tconfigs {
			if c.OrganizationID != orgID || !slices.Contains(transformIDs, c.TransformID) {
				continue
			}
			if kind != "" && c.Kind != kind {
				continue
			}
			out = append(out, &c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TransformID != b.TransformID {
			return a.TransformID < b.TransformID
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ID < b.ID
	})
	return out, err
}

func (m *MemoryRepository) ListConfigCodes(_ context.Context, kind models.ConfigKind) ([]*models.ConfigCode, error) {
	var out []*models.ConfigCode
	err := m.read(func(st *memoryState) error {
		for _, c := range st.codes {
			if kind == "" || c.Kind == kind {
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (m *MemoryRepository) ReplaceConfigCodes(_ context.Context, service string, codes []*models.ConfigCode) error {
	return m.write(func(st *memoryState) error {
		for code, c := range st.codes {
			if c.Service == service {
				delete(st.codes, code)
			}
		}
		for _, c := range codes {
			if _, taken := st.codes[c.Code]; taken {
				return fmt.Errorf("repository: config code %q already registered: %w", c.Code, ErrPersistence)
			}
			c.Service = service
			st.codes[c.Code] = *c
		}
		return nil
	})
}

// --- project configs ---

func (m *MemoryRepository) CreateProjectConfig(_ context.Context, pc *models.ProjectConfig) error {
	return m.write(func(st *memoryState) error {
		for _, p := range st.projects {
			if p.OrganizationID == pc.OrganizationID && p.ProjectID == pc.ProjectID && p.ApplyType == pc.ApplyType {
				return fmt.Errorf("repository: project %d already bound for %s: %w", pc.ProjectID, pc.ApplyType, ErrPersistence)
			}
		}
		pc.ID = st.next("project_config")
		pc.CreatedAt = m.now()
		st.projects[pc.ID] = *pc
		return nil
	})
}

func (m *MemoryRepository) GetProjectConfig(_ context.Context, orgID, projectID int64, applyType models.ApplyType) (*models.ProjectConfig, error) {
	var out *models.ProjectConfig
	err := m.read(func(st *memoryState) error {
		for _, p := range st.projects {
			if p.OrganizationID == orgID && p.ProjectID == projectID && p.ApplyType == applyType {
				out = &p
				return nil
			}
		}
		return fmt.Errorf("repository: project %d config for %s: %w", projectID, applyType, ErrNotFound)
	})
	return out, err
}

func (m *MemoryRepository) ListProjectConfigs(_ context.Context, orgID, projectID int64) ([]*models.ProjectConfig, error) {
	var out []*models.ProjectConfig
	err := m.read(func(st *memoryState) error {
		for _, p := range st.projects {
			if p.OrganizationID == orgID && p.ProjectID == projectID {
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ApplyType < out[j].ApplyType })
	return out, err
}

func (m *MemoryRepository) ListProjectConfigsBySchemes(_ context.Context, orgID int64, schemeIDs []int64) ([]*models.ProjectConfig, error) {
	var out []*models.ProjectConfig
	err := m.read(func(st *memoryState) error {
		for _, p := range st.projects {
			if p.OrganizationID == orgID && slices.Contains(schemeIDs, p.SchemeID) {
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].ApplyType < out[j].ApplyType
	})
	return out, err
}
