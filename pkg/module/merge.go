// Package module keeps the component catalog up to date with the
// components deployments bring with them.
package module

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/keyed"
	"github.com/fluxcd/circles/pkg/store"
)

const defaultConcurrency = 4

// Merger adds components to modules. Merges into the same module are
// serialised; different modules are merged in parallel.
type Merger struct {
	modules     store.Modules
	logger      log.Logger
	locks       keyed.Mutex
	concurrency int
	now         func() time.Time
}

func NewMerger(modules store.Modules, logger log.Logger) *Merger {
	return &Merger{
		modules:     modules,
		logger:      logger,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
}

// Merge records each module, creating it if it does not exist and
// otherwise adding the components it lacks. Components already in a
// module are left alone, so merging twice is the same as merging
// once.
func (m *Merger) Merge(ctx context.Context, modules []circle.Module) error {
	p := pool.New().WithContext(ctx).WithMaxGoroutines(m.concurrency)
	for _, mod := range modules {
		mod := mod
		p.Go(func(ctx context.Context) error {
			return m.merge(ctx, mod)
		})
	}
	return p.Wait()
}

func (m *Merger) merge(ctx context.Context, mod circle.Module) error {
	unlock := m.locks.Lock(string(mod.ID))
	defer unlock()

	existing, err := m.modules.GetModule(ctx, mod.ID)
	if store.IsNotFound(err) {
		if mod.CreatedAt.IsZero() {
			mod.CreatedAt = m.now()
		}
		mod.Components = circle.Module{}.NewComponents(mod.Components)
		err = m.modules.CreateModule(ctx, mod)
		if !store.IsAlreadyExists(err) {
			if err == nil {
				m.logger.Log("module", mod.ID, "created", len(mod.Components))
			}
			return err
		}
		// created elsewhere since we looked
		existing, err = m.modules.GetModule(ctx, mod.ID)
	}
	if err != nil {
		return err
	}

	fresh := existing.NewComponents(mod.Components)
	if len(fresh) == 0 {
		return nil
	}
	if err := m.modules.AddModuleComponents(ctx, mod.ID, fresh); err != nil {
		return err
	}
	m.logger.Log("module", mod.ID, "added", len(fresh))
	return nil
}
