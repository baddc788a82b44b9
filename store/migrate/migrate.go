// Package migrate runs versioned schema migrations for the SQL stores.
// Each backend adapts its connection to Executor; the Orchestrator records
// applied versions so a group can be migrated repeatedly.
package migrate

import (
	"context"
	"fmt"
	"sort"
)

// Executor is the backend-specific half of a migration run.
type Executor interface {
	// EnsureHistory creates the version table if needed.
	EnsureHistory(ctx context.Context) error
	// Applied returns the versions already recorded for group.
	Applied(ctx context.Context, group string) (map[string]bool, error)
	// Apply runs m.Up and records its version atomically.
	Apply(ctx context.Context, group string, m *Migration) error
}

// Migration is one schema step.
type Migration struct {
	Name    string
	Version string
	Up      string
}

// Group is an ordered set of migrations under one name.
type Group struct {
	name       string
	migrations []*Migration
	versions   map[string]bool
}

func NewGroup(name string) *Group {
	return &Group{name: name, versions: make(map[string]bool)}
}

func (g *Group) Name() string { return g.name }

// MustRegister adds migrations and panics on a duplicate version.
func (g *Group) MustRegister(ms ...*Migration) {
	for _, m := range ms {
		if g.versions[m.Version] {
			panic(fmt.Sprintf("migrate: duplicate version %s in group %s", m.Version, g.name))
		}
		g.versions[m.Version] = true
		g.migrations = append(g.migrations, m)
	}
	sort.Slice(g.migrations, func(i, j int) bool {
		return g.migrations[i].Version < g.migrations[j].Version
	})
}

// Migrations returns the registered migrations in version order.
func (g *Group) Migrations() []*Migration {
	out := make([]*Migration, len(g.migrations))
	copy(out, g.migrations)
	return out
}

// Result lists what one run applied.
type Result struct {
	Applied []string
}

type Orchestrator struct {
	exec  Executor
	group *Group
}

func NewOrchestrator(exec Executor, group *Group) *Orchestrator {
	return &Orchestrator{exec: exec, group: group}
}

// Migrate applies every pending migration in version order.
func (o *Orchestrator) Migrate(ctx context.Context) (*Result, error) {
	if err := o.exec.EnsureHistory(ctx); err != nil {
		return nil, fmt.Errorf("migrate: ensure history: %w", err)
	}

	applied, err := o.exec.Applied(ctx, o.group.name)
	if err != nil {
		return nil, fmt.Errorf("migrate: read history: %w", err)
	}

	res := &Result{}
	for _, m := range o.group.migrations {
		if applied[m.Version] {
			continue
		}
		if err := o.exec.Apply(ctx, o.group.name, m); err != nil {
			return res, fmt.Errorf("migrate: %s (%s): %w", m.Name, m.Version, err)
		}
		res.Applied = append(res.Applied, m.Version)
	}
	return res, nil
}
