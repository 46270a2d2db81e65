package services

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/pkg/models"
)

// DiffEngine compares a scheme's draft generation with its live generation.
type DiffEngine struct {
	configs   repository.ConfigStore
	directory Directory
}

// NewDiffEngine creates a DiffEngine reading through configs.
func NewDiffEngine(configs repository.ConfigStore, directory Directory) *DiffEngine {
	return &DiffEngine{configs: configs, directory: directory}
}

// generations is one consistent read of both generations plus the machine catalog.
type generations struct {
	live, draft []*models.SchemeConfig
	catalog     map[int64]*models.StateMachineWithStatus
}

func (d *DiffEngine) load(ctx context.Context, orgID, schemeID int64) (*generations, error) {
	g := &generations{}
	eg, egCtx := errgroup.WithContext(ctx)
	// Both generations go through the same store, which may be bound to a
	// single connection, so they are read one after the other.
	eg.Go(func() error {
		var err error
		if g.live, err = d.configs.ListConfigs(egCtx, models.Live, orgID, schemeID); err != nil {
			return err
		}
		g.draft, err = d.configs.ListConfigs(egCtx, models.Draft, orgID, schemeID)
		return err
	})
	eg.Go(func() error {
		var err error
		g.catalog, err = loadCatalog(egCtx, d.directory, orgID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return g, nil
}

// loadCatalog fetches the organization's machines keyed by id. A null machine is
// an upstream fault; null statuses are dropped.
func loadCatalog(ctx context.Context, directory Directory, orgID int64) (map[int64]*models.StateMachineWithStatus, error) {
	machines, err := directory.QueryAllWithStatus(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("query state machines: %w: %v", ErrUpstream, err)
	}
	catalog := make(map[int64]*models.StateMachineWithStatus, len(machines))
	for _, m := range machines {
		if m == nil {
			return nil, fmt.Errorf("query state machines: %w: null machine in catalog", ErrUpstream)
		}
		catalog[m.ID] = withoutNullStatuses(m)
	}
	return catalog, nil
}

// withoutNullStatuses returns m, or a copy of m with null status entries dropped.
func withoutNullStatuses(m *models.StateMachineWithStatus) *models.StateMachineWithStatus {
	if !slices.Contains(m.Statuses, nil) {
		return m
	}
	clean := *m
	clean.Statuses = slices.DeleteFunc(slices.Clone(m.Statuses), func(s *models.Status) bool { return s == nil })
	return &clean
}

func (g *generations) machine(id int64) (*models.StateMachineWithStatus, error) {
	m, ok := g.catalog[id]
	if !ok {
		return nil, fmt.Errorf("state machine %d is unknown to the directory: %w", id, ErrUpstream)
	}
	return m, nil
}

// ComputeChangedStatuses returns the statuses and machines the draft adds to or
// removes from the live generation.
func (d *DiffEngine) ComputeChangedStatuses(ctx context.Context, orgID, schemeID int64) (*models.DeployDiff, error) {
	g, err := d.load(ctx, orgID, schemeID)
	if err != nil {
		return nil, err
	}
	return g.changedStatuses()
}

func (g *generations) changedStatuses() (*models.DeployDiff, error) {
	liveMachines, draftMachines := machineIDs(g.live), machineIDs(g.draft)
	liveStatuses, err := g.statusUniverse(liveMachines)
	if err != nil {
		return nil, err
	}
	draftStatuses, err := g.statusUniverse(draftMachines)
	if err != nil {
		return nil, err
	}
	return &models.DeployDiff{
		AddedStatusIDs:    minus(draftStatuses, liveStatuses),
		RemovedStatusIDs:  minus(liveStatuses, draftStatuses),
		AddedMachineIDs:   minus(draftMachines, liveMachines),
		RemovedMachineIDs: minus(liveMachines, draftMachines),
	}, nil
}

func (g *generations) statusUniverse(machines []int64) ([]int64, error) {
	var ids []int64
	for _, id := range machines {
		m, err := g.machine(id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, m.StatusIDs()...)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func machineIDs(configs []*models.SchemeConfig) []int64 {
	ids := make([]int64, 0, len(configs))
	for _, c := range configs {
		ids = append(ids, c.StateMachineID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// minus returns the sorted members of a that are not in b.
func minus(a, b []int64) []int64 {
	out := []int64{}
	for _, id := range a {
		if !slices.Contains(b, id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// ComputeChangeItems lists the issue types whose effective machine changes in a
// way that strands at least one status. Issue counts are left at zero.
func (d *DiffEngine) ComputeChangeItems(ctx context.Context, orgID, schemeID int64) ([]*models.SchemeChangeItem, error) {
	g, err := d.load(ctx, orgID, schemeID)
	if err != nil {
		return nil, err
	}
	return g.changeItems()
}

type resolution struct {
	byIssueType map[int64]int64
	fallback    int64
}

func resolve(configs []*models.SchemeConfig) resolution {
	r := resolution{byIssueType: make(map[int64]int64, len(configs))}
	for _, c := range configs {
		if c.IsDefault {
			r.fallback = c.StateMachineID
			continue
		}
		r.byIssueType[c.IssueTypeID] = c.StateMachineID
	}
	return r
}

func (r resolution) machineFor(issueTypeID int64) int64 {
	if id, ok := r.byIssueType[issueTypeID]; ok {
		return id
	}
	return r.fallback
}

func (r resolution) sortedKeys() []int64 {
	keys := make([]int64, 0, len(r.byIssueType))
	for k := range r.byIssueType {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (g *generations) changeItems() ([]*models.SchemeChangeItem, error) {
	live, draft := resolve(g.live), resolve(g.draft)

	seen := make(map[int64]bool)
	var candidates []*models.SchemeChangeItem
	for _, keys := range [][]int64{live.sortedKeys(), draft.sortedKeys()} {
		for _, issueTypeID := range keys {
			if seen[issueTypeID] {
				continue
			}
			seen[issueTypeID] = true
			oldID, newID := live.machineFor(issueTypeID), draft.machineFor(issueTypeID)
			if oldID != newID {
				candidates = append(candidates, &models.SchemeChangeItem{
					IssueTypeID:       issueTypeID,
					OldStateMachineID: oldID,
					NewStateMachineID: newID,
				})
			}
		}
	}

	items := make([]*models.SchemeChangeItem, 0, len(candidates))
	for _, item := range candidates {
		changes, err := g.statusChanges(item.OldStateMachineID, item.NewStateMachineID)
		if err != nil {
			return nil, err
		}
		if len(changes) == 0 {
			continue
		}
		item.StatusChangeItems = changes
		items = append(items, item)
	}
	return items, nil
}

// statusChanges pairs each status of the old machine missing from the new machine
// with the new machine's first status. A zero old machine id means the issue type
// had no live mapping, so nothing can be stranded.
func (g *generations) statusChanges(oldID, newID int64) ([]*models.StatusChangeItem, error) {
	if oldID == 0 {
		return nil, nil
	}
	oldMachine, err := g.machine(oldID)
	if err != nil {
		return nil, err
	}
	var newStatuses []*models.Status
	if newID != 0 {
		newMachine, err := g.machine(newID)
		if err != nil {
			return nil, err
		}
		newStatuses = newMachine.Statuses
	}

	newIDs := make(map[int64]bool, len(newStatuses))
	for _, s := range newStatuses {
		newIDs[s.ID] = true
	}
	var target *models.Status
	if len(newStatuses) > 0 {
		target = newStatuses[0]
	}

	var changes []*models.StatusChangeItem
	for _, s := range oldMachine.Statuses {
		if !newIDs[s.ID] {
			changes = append(changes, &models.StatusChangeItem{OldStatus: s, NewStatus: target})
		}
	}
	return changes, nil
}
