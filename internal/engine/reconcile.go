package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/switchyard/internal/github"
	"github.com/zulandar/switchyard/internal/models"
	"github.com/zulandar/switchyard/internal/resolve"
	"github.com/zulandar/switchyard/internal/store"
	"github.com/zulandar/switchyard/internal/tracker"
)

// maxVersionRetries bounds how often a reconciliation restarts after
// losing the optimistic version race on its mapping row.
const maxVersionRetries = 3

// reconcileMapped reconciles one already-paired issue: it resolves the
// local and remote copies, applies the writes each side needs, and
// advances the mapping snapshots. Restarts from fresh state when another
// worker bumps the mapping version first.
func (e *Engine) reconcileMapped(ctx context.Context, rt *runtime, mapping *models.IssueMapping, remote *github.RemoteIssue) error {
	unlock := e.lockIssue(rt.inst.ID, fmt.Sprintf("r%d", mapping.RemoteNumber))
	defer unlock()

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		err := e.reconcileOnce(ctx, rt, mapping, remote)
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		fresh, lookupErr := e.store.MappingByRemoteNumber(rt.inst.ID, mapping.RemoteNumber)
		if lookupErr != nil {
			return lookupErr
		}
		mapping = fresh
	}
	return fmt.Errorf("engine: %s: gave up after %d version conflicts", mapping.LocalID, maxVersionRetries)
}

func (e *Engine) reconcileOnce(ctx context.Context, rt *runtime, mapping *models.IssueMapping, remote *github.RemoteIssue) error {
	local, err := e.tracker.Get(mapping.LocalID)
	if errors.Is(err, tracker.ErrNotFound) {
		// The local row vanished under an existing mapping. Rebuild it
		// from the remote copy; the mapping is never dropped.
		rebuilt := e.localFromRemote(rt, remote, mapping.LocalID)
		if err := e.tracker.Create(rebuilt, rt.inst.Repo); err != nil {
			return err
		}
		local, err = e.tracker.Get(mapping.LocalID)
	}
	if err != nil {
		return err
	}

	remoteLocal := e.localFromRemote(rt, remote, mapping.LocalID)
	res := resolve.Resolve(local, remoteLocal, mapping, resolve.Strategy(strategyFor(rt.inst)))

	localAt := local.UpdatedAt
	remoteAt := remote.UpdatedAt

	if res.LocalWrite {
		if err := e.tracker.Update(mapping.LocalID, &res.Merged); err != nil {
			return err
		}
		refreshed, err := e.tracker.Get(mapping.LocalID)
		if err != nil {
			return err
		}
		localAt = refreshed.UpdatedAt
	}
	if res.RemoteWrite {
		var updated *github.RemoteIssue
		err := e.retryRemote(ctx, func() error {
			var uerr error
			updated, uerr = rt.remote.Update(ctx, mapping.RemoteNumber, updateRequestFor(rt.conv, &res.Merged))
			return uerr
		})
		if err != nil {
			return err
		}
		remoteAt = updated.UpdatedAt
	}

	return e.store.MarkSynced(mapping, localAt, remoteAt, time.Now().UTC())
}

// pairRemote creates the local copy and mapping for a remote issue seen
// for the first time. Honors the installation's create_missing setting.
func (e *Engine) pairRemote(ctx context.Context, rt *runtime, remote *github.RemoteIssue) error {
	unlock := e.lockIssue(rt.inst.ID, fmt.Sprintf("r%d", remote.Number))
	defer unlock()

	// The mapping may have appeared while we waited on the lock.
	if existing, err := e.store.MappingByRemoteNumber(rt.inst.ID, remote.Number); err == nil {
		return e.reconcileOnce(ctx, rt, existing, remote)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if !wantsCreate(rt.inst, "local") {
		log.Printf("engine: %s/%s#%d unmapped, create_missing=%s skips local create",
			rt.inst.Owner, rt.inst.Repo, remote.Number, rt.inst.CreateMissing)
		return nil
	}

	issue := e.localFromRemote(rt, remote, "")
	if err := e.tracker.Create(issue, rt.inst.Repo); err != nil {
		return err
	}
	created, err := e.tracker.Get(issue.ID)
	if err != nil {
		return err
	}

	mapping := &models.IssueMapping{
		InstallationID:        rt.inst.ID,
		LocalID:               issue.ID,
		RemoteNumber:          remote.Number,
		RemoteURL:             remote.HTMLURL,
		LastSyncedAt:          time.Now().UTC(),
		LocalUpdatedAtAtSync:  created.UpdatedAt,
		RemoteUpdatedAtAtSync: remote.UpdatedAt,
	}
	if err := e.store.CreateMapping(mapping); err != nil {
		return err
	}
	log.Printf("engine: paired %s/%s#%d as %s", rt.inst.Owner, rt.inst.Repo, remote.Number, issue.ID)
	return nil
}

// pairLocal creates the remote copy and mapping for a local-only issue.
func (e *Engine) pairLocal(ctx context.Context, rt *runtime, local *models.Issue) error {
	unlock := e.lockIssue(rt.inst.ID, "l"+local.ID)
	defer unlock()

	if _, err := e.store.MappingByLocalID(rt.inst.ID, local.ID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if !wantsCreate(rt.inst, "remote") {
		return nil
	}

	var remote *github.RemoteIssue
	err := e.retryRemote(ctx, func() error {
		var cerr error
		remote, cerr = rt.remote.Create(ctx, createRequestFor(rt.conv, local))
		return cerr
	})
	if err != nil {
		return err
	}

	// The create API always opens issues. A closed local gets a
	// follow-up close so pairing converges in one pass.
	if local.Status == models.StatusClosed {
		state := "closed"
		err := e.retryRemote(ctx, func() error {
			updated, uerr := rt.remote.Update(ctx, remote.Number, github.UpdateRequest{State: &state})
			if uerr != nil {
				return uerr
			}
			remote = updated
			return nil
		})
		if err != nil {
			return err
		}
	}

	// Record the remote counterpart on the local row, then snapshot the
	// bumped UpdatedAt so the pairing itself does not read as a change.
	withRef := *local
	if remote.HTMLURL != "" {
		url := remote.HTMLURL
		withRef.ExternalRef = &url
	}
	if err := e.tracker.Update(local.ID, &withRef); err != nil {
		return err
	}
	refreshed, err := e.tracker.Get(local.ID)
	if err != nil {
		return err
	}

	mapping := &models.IssueMapping{
		InstallationID:        rt.inst.ID,
		LocalID:               local.ID,
		RemoteNumber:          remote.Number,
		RemoteURL:             remote.HTMLURL,
		LastSyncedAt:          time.Now().UTC(),
		LocalUpdatedAtAtSync:  refreshed.UpdatedAt,
		RemoteUpdatedAtAtSync: remote.UpdatedAt,
	}
	if err := e.store.CreateMapping(mapping); err != nil {
		return err
	}
	log.Printf("engine: paired %s as %s/%s#%d", local.ID, rt.inst.Owner, rt.inst.Repo, remote.Number)
	return nil
}
