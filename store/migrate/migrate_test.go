package migrate

import (
	"context"
	"errors"
	"testing"
)

type fakeExecutor struct {
	applied map[string]bool
	ran     []string
	failOn  string
}

func (f *fakeExecutor) EnsureHistory(context.Context) error { return nil }

func (f *fakeExecutor) Applied(context.Context, string) (map[string]bool, error) {
	out := make(map[string]bool, len(f.applied))
	for k, v := range f.applied {
		out[k] = v
	}
	return out, nil
}

func (f *fakeExecutor) Apply(_ context.Context, _ string, m *Migration) error {
	if m.Version == f.failOn {
		return errors.New("boom")
	}
	f.applied[m.Version] = true
	f.ran = append(f.ran, m.Version)
	return nil
}

func TestOrchestratorAppliesPendingInOrder(t *testing.T) {
	g := NewGroup("test")
	g.MustRegister(
		&Migration{Name: "b", Version: "002"},
		&Migration{Name: "a", Version: "001"},
		&Migration{Name: "c", Version: "003"},
	)

	exec := &fakeExecutor{applied: map[string]bool{"001": true}}
	res, err := NewOrchestrator(exec, g).Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(res.Applied) != 2 || res.Applied[0] != "002" || res.Applied[1] != "003" {
		t.Errorf("applied = %v, want [002 003]", res.Applied)
	}

	res, err = NewOrchestrator(exec, g).Migrate(context.Background())
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(res.Applied) != 0 {
		t.Errorf("second run applied %v, want nothing", res.Applied)
	}
}

func TestOrchestratorStopsOnFailure(t *testing.T) {
	g := NewGroup("test")
	g.MustRegister(
		&Migration{Name: "a", Version: "001"},
		&Migration{Name: "b", Version: "002"},
		&Migration{Name: "c", Version: "003"},
	)

	exec := &fakeExecutor{applied: map[string]bool{}, failOn: "002"}
	res, err := NewOrchestrator(exec, g).Migrate(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(res.Applied) != 1 || res.Applied[0] != "001" {
		t.Errorf("applied = %v, want [001]", res.Applied)
	}
	if exec.applied["003"] {
		t.Error("migration after the failure should not run")
	}
}

func TestMustRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate version")
		}
	}()
	g := NewGroup("test")
	g.MustRegister(&Migration{Version: "001"}, &Migration{Version: "001"})
}
