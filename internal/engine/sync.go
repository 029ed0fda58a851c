package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/switchyard/internal/github"
	"github.com/zulandar/switchyard/internal/models"
	"github.com/zulandar/switchyard/internal/notify"
	"github.com/zulandar/switchyard/internal/resolve"
	"github.com/zulandar/switchyard/internal/tracker"
)

// PlannedWrite is one write a dry-run pass would perform.
type PlannedWrite struct {
	Action       string // update-local, update-remote, create-local, create-remote
	LocalID      string
	RemoteNumber int
}

// PassReport summarizes one full reconciliation pass over an installation.
type PassReport struct {
	Owner      string
	Repo       string
	DryRun     bool
	Reconciled int
	Planned    []PlannedWrite
	Errors     []string
}

// SyncAll runs a full pass over every active installation. A failure in
// one installation does not stop the others.
func (e *Engine) SyncAll(ctx context.Context, dryRun bool) ([]*PassReport, error) {
	insts, err := e.store.ActiveInstallations()
	if err != nil {
		return nil, err
	}
	var reports []*PassReport
	for i := range insts {
		if ctx.Err() != nil {
			break
		}
		report, err := e.SyncInstallation(ctx, insts[i].Owner, insts[i].Repo, dryRun)
		if err != nil {
			report = &PassReport{Owner: insts[i].Owner, Repo: insts[i].Repo, DryRun: dryRun,
				Errors: []string{err.Error()}}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// SyncInstallation runs one full reconciliation pass: mirror import,
// pairing of both sides, reconciliation of every mapping, then mirror
// export. A dry run reports planned writes without applying anything or
// touching the sync state.
func (e *Engine) SyncInstallation(ctx context.Context, owner, repo string, dryRun bool) (*PassReport, error) {
	rt, err := e.runtimeFor(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	report := &PassReport{Owner: owner, Repo: repo, DryRun: dryRun}

	if dryRun {
		e.planPass(ctx, rt, report)
		return report, nil
	}

	if err := e.store.BeginSync(rt.inst.ID); err != nil {
		return nil, err
	}
	e.wg.Add(1)
	defer e.wg.Done()

	passErr := e.runPass(ctx, rt, report)
	if passErr != nil {
		e.failPass(ctx, rt, passErr)
		return report, passErr
	}
	if err := e.store.FinishSync(rt.inst.ID, time.Now().UTC()); err != nil {
		return report, err
	}
	return report, nil
}

// runPass is the body of a live pass.
func (e *Engine) runPass(ctx context.Context, rt *runtime, report *PassReport) error {
	if err := e.importMirror(rt); err != nil {
		return err
	}

	remotes, locals, mappings, err := e.loadSides(ctx, rt)
	if err != nil {
		return err
	}

	mappedLocal := make(map[string]bool, len(mappings))
	mappedRemote := make(map[int]bool, len(mappings))

	for i := range mappings {
		if ctx.Err() != nil {
			// Shutdown: in-flight issues above have completed; stop
			// starting new ones.
			break
		}
		m := &mappings[i]
		mappedLocal[m.LocalID] = true
		mappedRemote[m.RemoteNumber] = true

		remote, ok := remotes[m.RemoteNumber]
		if !ok {
			var gerr error
			remote, gerr = rt.remote.Get(ctx, m.RemoteNumber)
			if gerr != nil {
				report.Errors = append(report.Errors, gerr.Error())
				continue
			}
		}
		if err := e.reconcileMapped(ctx, rt, m, remote); err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.Reconciled++
	}

	for number, remote := range remotes {
		if ctx.Err() != nil {
			break
		}
		if mappedRemote[number] {
			continue
		}
		if err := e.pairRemote(ctx, rt, remote); err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}
	for _, local := range locals {
		if ctx.Err() != nil {
			break
		}
		if mappedLocal[local.ID] {
			continue
		}
		if err := e.pairLocal(ctx, rt, local); err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	if err := e.exportMirror(rt); err != nil {
		return err
	}

	if len(report.Errors) > 0 {
		return fmt.Errorf("engine: %s/%s: %d issues failed: %s",
			rt.inst.Owner, rt.inst.Repo, len(report.Errors), strings.Join(report.Errors, "; "))
	}
	return nil
}

// planPass computes the writes a live pass would perform, with no side
// effects beyond remote reads.
func (e *Engine) planPass(ctx context.Context, rt *runtime, report *PassReport) {
	remotes, locals, mappings, err := e.loadSides(ctx, rt)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}

	mappedLocal := make(map[string]bool, len(mappings))
	mappedRemote := make(map[int]bool, len(mappings))

	for i := range mappings {
		m := &mappings[i]
		mappedLocal[m.LocalID] = true
		mappedRemote[m.RemoteNumber] = true

		remote, ok := remotes[m.RemoteNumber]
		if !ok {
			continue
		}
		local, err := e.tracker.Get(m.LocalID)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		res := resolve.Resolve(local, e.localFromRemote(rt, remote, m.LocalID), m, resolve.Strategy(strategyFor(rt.inst)))
		if res.LocalWrite {
			report.Planned = append(report.Planned, PlannedWrite{Action: "update-local", LocalID: m.LocalID, RemoteNumber: m.RemoteNumber})
		}
		if res.RemoteWrite {
			report.Planned = append(report.Planned, PlannedWrite{Action: "update-remote", LocalID: m.LocalID, RemoteNumber: m.RemoteNumber})
		}
	}

	for number := range remotes {
		if !mappedRemote[number] && wantsCreate(rt.inst, "local") {
			report.Planned = append(report.Planned, PlannedWrite{Action: "create-local", RemoteNumber: number})
		}
	}
	for _, local := range locals {
		if !mappedLocal[local.ID] && wantsCreate(rt.inst, "remote") {
			report.Planned = append(report.Planned, PlannedWrite{Action: "create-remote", LocalID: local.ID})
		}
	}
}

// loadSides fetches the three inputs of a pass: the remote issue set,
// the local issue set, and the mappings pairing them.
func (e *Engine) loadSides(ctx context.Context, rt *runtime) (map[int]*github.RemoteIssue, []*models.Issue, []models.IssueMapping, error) {
	remoteList, err := rt.remote.List(ctx, "all")
	if err != nil {
		return nil, nil, nil, err
	}
	remotes := make(map[int]*github.RemoteIssue, len(remoteList))
	for _, r := range remoteList {
		remotes[r.Number] = r
	}

	locals, err := e.tracker.List(tracker.Filter{})
	if err != nil {
		return nil, nil, nil, err
	}

	mappings, err := e.store.ListMappings(rt.inst.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return remotes, locals, mappings, nil
}

// importMirror feeds hand-edited mirror files into the tracker. The
// directory hash short-circuits the scan when nothing changed since the
// last pass.
func (e *Engine) importMirror(rt *runtime) error {
	hash, err := e.mirror.Hash()
	if err != nil {
		return err
	}
	state, err := e.store.State(rt.inst.ID)
	if err != nil {
		return err
	}
	if state.LastMirrorHash == hash {
		return nil
	}

	issues, err := e.mirror.ReadAll()
	if err != nil {
		return err
	}
	for _, issue := range issues {
		existing, err := e.tracker.Get(issue.ID)
		if errors.Is(err, tracker.ErrNotFound) {
			if cerr := e.tracker.Create(issue, rt.inst.Repo); cerr != nil {
				return cerr
			}
			continue
		}
		if err != nil {
			return err
		}
		if !resolve.Equivalent(issue, existing) {
			if uerr := e.tracker.Update(issue.ID, issue); uerr != nil {
				return uerr
			}
		}
	}
	return nil
}

// exportMirror rewrites the mirror directory from the tracker and records
// the resulting hash. Engine writes are marked on the watcher so they do
// not echo back as local edits.
func (e *Engine) exportMirror(rt *runtime) error {
	issues, err := e.tracker.List(tracker.Filter{})
	if err != nil {
		return err
	}
	if err := e.mirror.Export(issues); err != nil {
		return err
	}
	if e.watcher != nil {
		for _, issue := range issues {
			e.watcher.Mark(e.mirror.Path(issue.ID))
		}
	}
	hash, err := e.mirror.Hash()
	if err != nil {
		return err
	}
	return e.store.SetMirrorHash(rt.inst.ID, hash)
}

// failPass records a failed pass and escalates once per transition into
// the error state. Consecutive failures raise the counter without
// repeating the notification.
func (e *Engine) failPass(ctx context.Context, rt *runtime, passErr error) {
	prior, stateErr := e.store.State(rt.inst.ID)
	if err := e.store.FailSync(rt.inst.ID, passErr.Error()); err != nil {
		log.Printf("engine: %s/%s: record failure: %v", rt.inst.Owner, rt.inst.Repo, err)
		return
	}
	if stateErr != nil || prior.ErrorCount > 0 {
		return
	}

	event := notify.Event{
		Title:    fmt.Sprintf("sync error: %s/%s", rt.inst.Owner, rt.inst.Repo),
		Body:     passErr.Error(),
		Severity: notify.SeverityError,
		Fields: []notify.Field{
			{Name: "installation", Value: fmt.Sprintf("%s/%s", rt.inst.Owner, rt.inst.Repo)},
			{Name: "retry budget", Value: strconv.Itoa(e.cfg.Sync.RetryMax)},
		},
	}
	if err := e.notifier.Send(ctx, event); err != nil {
		log.Printf("engine: %s/%s: escalation failed: %v", rt.inst.Owner, rt.inst.Repo, err)
	}
}

// Resume moves an installation out of the error state so the next pass
// can run.
func (e *Engine) Resume(owner, repo string) error {
	inst, err := e.store.InstallationByRepo(owner, repo)
	if err != nil {
		return err
	}
	return e.store.ResumeAfterError(inst.ID)
}
