package core

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IndividualID uniquely identifies a tracked individual.
type IndividualID string

// BadgeID uniquely identifies a badge definition.
type BadgeID string

// Kind distinguishes cumulative badges from periodic ones.
type Kind string

const (
	KindCumulative Kind = "cumulative"
	KindPeriodic   Kind = "periodic"
)

// Frequency is the maintenance reset cadence of a badge.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
	FrequencyCustom    Frequency = "custom"
)

// Unit is the step unit of a custom reset interval.
type Unit string

const (
	UnitDays   Unit = "days"
	UnitWeeks  Unit = "weeks"
	UnitMonths Unit = "months"
)

// ResetSchedule describes how often a maintenance cycle rolls over.
// Interval and Unit are only consulted for FrequencyCustom.
type ResetSchedule struct {
	Frequency Frequency `json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly monthly quarterly yearly custom"`
	Interval  int       `json:"interval,omitempty" validate:"gte=0"`
	Unit      Unit      `json:"unit,omitempty" validate:"omitempty,oneof=days weeks months"`
}

// Enabled reports whether a frequency has been configured.
func (r ResetSchedule) Enabled() bool { return r.Frequency != "" }

// Reward is the payload granted when a badge is earned or renewed.
type Reward struct {
	Points     int64           `json:"points,omitempty" validate:"gte=0"`
	Items      []string        `json:"items,omitempty"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

// BadgeDefinition is the immutable configuration of a badge.
type BadgeDefinition struct {
	ID                   BadgeID        `json:"id" validate:"required"`
	Name                 string         `json:"name,omitempty"`
	Kind                 Kind           `json:"kind" validate:"required,oneof=cumulative periodic"`
	AcquisitionThreshold int64          `json:"acquisition_threshold" validate:"gte=0"`
	MaintenanceThreshold int64          `json:"maintenance_threshold" validate:"gte=0"`
	Reset                ResetSchedule  `json:"reset"`
	GraceDays            int            `json:"grace_days" validate:"gte=0"`
	Reward               Reward         `json:"reward"`
	Assigned             []IndividualID `json:"assigned,omitempty" validate:"dive,required"`
	CreatedAt            time.Time      `json:"created_at"`
}

// MaintenanceEnabled reports whether the badge must be re-earned every cycle.
func (d BadgeDefinition) MaintenanceEnabled() bool {
	return d.MaintenanceThreshold > 0 && d.Reset.Enabled()
}

// AssignedTo reports whether the badge applies to the individual.
func (d BadgeDefinition) AssignedTo(id IndividualID) bool {
	for _, a := range d.Assigned {
		if a == id {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a badge for one individual.
type Status string

const (
	StatusNotEarned Status = "not_earned"
	StatusActive    Status = "active"
	StatusGrace     Status = "grace"
	StatusDemoted   Status = "demoted"
)

// Earned reports whether the badge was earned at some point.
func (s Status) Earned() bool {
	return s == StatusActive || s == StatusGrace || s == StatusDemoted
}

// Transition names the last state change applied to a progress record.
type Transition string

const (
	TransitionEarned      Transition = "earned"
	TransitionInitialized Transition = "initialized"
	TransitionRenewed     Transition = "renewed"
	TransitionGrace       Transition = "grace"
	TransitionDemoted     Transition = "demoted"
	TransitionRepaired    Transition = "repaired"
	// TransitionFrozen marks a lower tier pinned at Active under a higher earned tier.
	TransitionFrozen Transition = "frozen"
)

// Cycle holds the maintenance dates of an earned badge.
// GraceEnd is the zero time unless the owning progress is in grace.
type Cycle struct {
	End      time.Time `json:"end"`
	GraceEnd time.Time `json:"grace_end,omitempty"`
}

// Progress is the per individual and badge maintenance record.
type Progress struct {
	Badge          BadgeID    `json:"badge"`
	Status         Status     `json:"status"`
	CyclePoints    int64      `json:"cycle_points"`
	Cycle          *Cycle     `json:"cycle,omitempty"`
	EarnedAt       time.Time  `json:"earned_at"`
	LastTransition Transition `json:"last_transition,omitempty"`
	TransitionedAt time.Time  `json:"transitioned_at"`
}

// Clone returns a copy that shares no pointers with p.
func (p Progress) Clone() Progress {
	cp := p
	if p.Cycle != nil {
		c := *p.Cycle
		cp.Cycle = &c
	}
	return cp
}

// Validate reports illegal field combinations.
func (p Progress) Validate() error {
	switch p.Status {
	case StatusNotEarned, StatusActive, StatusDemoted:
		if p.Cycle != nil && !p.Cycle.GraceEnd.IsZero() {
			return ErrInvalidProgress
		}
	case StatusGrace:
		if p.Cycle == nil || p.Cycle.GraceEnd.IsZero() || p.Cycle.GraceEnd.Before(p.Cycle.End) {
			return ErrInvalidProgress
		}
	default:
		return ErrInvalidProgress
	}
	if p.CyclePoints < 0 {
		return ErrInvalidProgress
	}
	return nil
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, ErrOverflow
	}
	return base + delta, nil
}

// NormalizeIndividualID trims and lowercases individual identifiers.
func NormalizeIndividualID(id IndividualID) (IndividualID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", ErrEmptyIndividual
	}
	return IndividualID(strings.ToLower(s)), nil
}

// ValidateBadgeID ensures non-empty badge id with simple charset check.
func ValidateBadgeID(b BadgeID) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return ErrInvalidBadgeID
	}
	// alnum, dash, underscore
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return ErrInvalidBadgeID
	}
	return nil
}
