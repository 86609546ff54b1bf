package engine

import (
	"time"

	"badgekit/core"
	"badgekit/schedule"
)

// Emit names the event a transition publishes.
type Emit int

const (
	EmitNone Emit = iota
	EmitAcquired
	EmitRenewed
	EmitDemoted
)

// Snapshot is the state one evaluation step reads. It is never mutated by Step.
type Snapshot struct {
	Definitions []core.BadgeDefinition
	Progress    map[core.BadgeID]core.Progress
	Lifetime    int64
	Today       time.Time
}

// Outcome is the result of one step. A zero Transition means no-op: nothing
// is written, recalculated or published.
type Outcome struct {
	Transition core.Transition
	Record     core.Progress
	// Frozen holds lower tiers pinned at Active by this step. They are
	// written together with Record.
	Frozen []core.Progress
	Emit   Emit
	Recalc bool
}

// Records returns every progress record the outcome writes.
func (o Outcome) Records() []core.Progress {
	if o.NoOp() {
		return nil
	}
	return append([]core.Progress{o.Record}, o.Frozen...)
}

// NoOp reports whether the step left the state untouched.
func (o Outcome) NoOp() bool { return o.Transition == "" }

// Step computes the next state of one badge. It is a pure function of the
// snapshot: repeated calls on the same snapshot return the same outcome.
func Step(s Snapshot, def core.BadgeDefinition) Outcome {
	if def.Kind != core.KindCumulative {
		return Outcome{}
	}
	today := schedule.Day(s.Today)

	cur, ok := s.Progress[def.ID]
	if !ok || !cur.Status.Earned() {
		return acquire(s, def, today)
	}
	cur = cur.Clone()

	// only the governing tier is maintained; lower tiers stay frozen at Active
	if highest, _, found := ResolveHighest(s.Definitions, s.Progress); found && highest.ID != def.ID {
		if cur.Status == core.StatusActive {
			return Outcome{}
		}
		return Outcome{Transition: core.TransitionFrozen, Record: freeze(cur, today), Recalc: true}
	}

	if !maintained(def) {
		if cur.Status == core.StatusActive && cur.Cycle == nil {
			return Outcome{}
		}
		cur.Status = core.StatusActive
		cur.Cycle = nil
		return changed(cur, core.TransitionRepaired, today, EmitNone, true)
	}

	if cur.Cycle == nil || cur.Cycle.End.IsZero() || cur.Validate() != nil {
		end, _ := schedule.NextBoundary(def.Reset, today)
		cur.Status = core.StatusActive
		cur.Cycle = &core.Cycle{End: end}
		if cur.CyclePoints < 0 {
			cur.CyclePoints = 0
		}
		return changed(cur, core.TransitionInitialized, today, EmitNone, false)
	}

	end := schedule.Day(cur.Cycle.End)
	if today.Before(end) {
		return Outcome{}
	}

	if cur.CyclePoints >= def.MaintenanceThreshold {
		next, _ := schedule.NextBoundary(def.Reset, end)
		cur.Status = core.StatusActive
		cur.CyclePoints = 0
		cur.Cycle = &core.Cycle{End: next}
		return changed(cur, core.TransitionRenewed, today, EmitRenewed, true)
	}

	if cur.Status == core.StatusGrace {
		if today.Before(schedule.Day(cur.Cycle.GraceEnd)) {
			return Outcome{}
		}
		return demote(cur, def, end, today)
	}

	if def.GraceDays > 0 {
		cur.Status = core.StatusGrace
		cur.Cycle = &core.Cycle{End: end, GraceEnd: schedule.GraceEnd(end, def.GraceDays)}
		return changed(cur, core.TransitionGrace, today, EmitNone, false)
	}
	return demote(cur, def, end, today)
}

func acquire(s Snapshot, def core.BadgeDefinition, today time.Time) Outcome {
	if s.Lifetime < def.AcquisitionThreshold {
		return Outcome{}
	}
	earned := core.Progress{
		Badge:          def.ID,
		Status:         core.StatusActive,
		EarnedAt:       today,
		LastTransition: core.TransitionEarned,
		TransitionedAt: today,
	}
	out := Outcome{Transition: core.TransitionEarned, Record: earned, Emit: EmitAcquired, Recalc: true}

	// a newly governing tier pins every earned tier below it at Active
	highest, _, _ := ResolveHighest(s.Definitions, Apply(s.Progress, out))
	if highest.ID != def.ID {
		return out
	}
	for _, d := range s.Definitions {
		p, ok := s.Progress[d.ID]
		if d.ID == def.ID || !ok || !p.Status.Earned() {
			continue
		}
		if p.Status == core.StatusActive && p.Cycle == nil {
			continue
		}
		out.Frozen = append(out.Frozen, freeze(p, today))
	}
	return out
}

// freeze pins a lower tier at Active with no maintenance dates. Cycle points
// are left as they are.
func freeze(p core.Progress, today time.Time) core.Progress {
	p = p.Clone()
	p.Status = core.StatusActive
	p.Cycle = nil
	p.LastTransition = core.TransitionFrozen
	p.TransitionedAt = today
	return p
}

// demote moves the record to Demoted and opens the next cycle, anchored at
// the missed end date.
func demote(cur core.Progress, def core.BadgeDefinition, end, today time.Time) Outcome {
	next, _ := schedule.NextBoundary(def.Reset, end)
	cur.Status = core.StatusDemoted
	cur.CyclePoints = 0
	cur.Cycle = &core.Cycle{End: next}
	return changed(cur, core.TransitionDemoted, today, EmitDemoted, true)
}

func changed(p core.Progress, tr core.Transition, today time.Time, emit Emit, recalc bool) Outcome {
	p.LastTransition = tr
	p.TransitionedAt = today
	return Outcome{Transition: tr, Record: p, Emit: emit, Recalc: recalc}
}

// maintained reports whether a badge has a usable maintenance configuration.
// A schedule that yields no boundary counts as disabled.
func maintained(def core.BadgeDefinition) bool {
	if !def.MaintenanceEnabled() {
		return false
	}
	_, err := schedule.NextBoundary(def.Reset, time.Time{})
	return err == nil
}

// Apply returns a copy of progress with the outcome records applied.
func Apply(progress map[core.BadgeID]core.Progress, out Outcome) map[core.BadgeID]core.Progress {
	next := make(map[core.BadgeID]core.Progress, len(progress)+1)
	for k, v := range progress {
		next[k] = v.Clone()
	}
	for _, r := range out.Records() {
		next[r.Badge] = r.Clone()
	}
	return next
}
