package jobs

import (
	"context"

	"psadtagent/internal/pkgstore"
)

func (r *Runner) changedLocked(id string) chan struct{} {
	ch, ok := r.changed[id]
	if !ok {
		ch = make(chan struct{})
		r.changed[id] = ch
	}
	return ch
}

// Notify wakes subscribers of id so they re-read the package record.
func (r *Runner) Notify(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.changed[id]; ok {
		close(ch)
		delete(r.changed, id)
	}
}

// Terminal reports whether a package will receive no further updates.
func Terminal(st pkgstore.Status) bool {
	return st == pkgstore.StatusCompleted || st == pkgstore.StatusFailed
}

// Subscribe emits a snapshot of the package now and after every progress
// change. The channel closes once the package reaches a terminal status,
// is deleted, or ctx is done. Slow readers only see the latest snapshots.
func (r *Runner) Subscribe(ctx context.Context, packageID string) (<-chan pkgstore.Package, error) {
	if _, err := r.store.Get(ctx, packageID); err != nil {
		return nil, err
	}
	out := make(chan pkgstore.Package, 8)
	go func() {
		defer close(out)
		for {
			r.mu.Lock()
			ch := r.changedLocked(packageID)
			r.mu.Unlock()

			pkg, err := r.store.Get(ctx, packageID)
			if err != nil {
				return
			}
			push(out, pkg)
			if Terminal(pkg.Status) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-r.ctx.Done():
				return
			case <-ch:
			}
		}
	}()
	return out, nil
}

// push never blocks; when out is full the oldest snapshot is dropped.
func push(out chan pkgstore.Package, pkg pkgstore.Package) {
	select {
	case out <- pkg:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- pkg:
	default:
	}
}
