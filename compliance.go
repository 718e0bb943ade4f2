package hosz

import (
	"fmt"
	"slices"
	"time"
)

// RuleID identifies a compliance rule. Issues carry the id of the rule that
// raised them.
type RuleID = string

// Rule ids of the default rule set.
const (
	RuleDriving11Hour RuleID = "11-hour-rule"
	RuleWindow14Hour  RuleID = "14-hour-rule"
	RuleBreak30Min    RuleID = "30-min-break"
	RuleCycle         RuleID = "60/70-hour-rule"
	RuleDocExpiry     RuleID = "doc-expiry"
)

// IssueKind is the severity of a compliance issue.
type IssueKind uint8

// Issue severities, ordered by increasing severity.
const (
	IssueWarning IssueKind = iota + 1
	IssueViolation
)

func (k IssueKind) String() string {
	switch k {
	case IssueWarning:
		return "warning"
	case IssueViolation:
		return "violation"
	default:
		return fmt.Sprintf("IssueKind(%d)", uint8(k))
	}
}

// ComplianceIssue is a breached or nearly breached rule. Issues are always
// re-derivable from the history and the thresholds; storing them is optional.
type ComplianceIssue struct {
	DueDate *time.Time `json:"due_date,omitempty"`
	RuleID  RuleID     `json:"rule_id"`
	Message string     `json:"message"`
	Kind    IssueKind  `json:"kind"`
}

// ComplianceStatus summarizes a set of issues by their worst severity.
type ComplianceStatus uint8

// Overall statuses.
const (
	GoodStanding ComplianceStatus = iota
	StatusWarning
	StatusViolation
)

func (s ComplianceStatus) String() string {
	switch s {
	case GoodStanding:
		return "good_standing"
	case StatusWarning:
		return "warning"
	case StatusViolation:
		return "violation"
	default:
		return fmt.Sprintf("ComplianceStatus(%d)", uint8(s))
	}
}

// OverallStatus returns Violation if any issue is a violation, Warning if any
// is a warning, and GoodStanding otherwise.
func OverallStatus(issues []ComplianceIssue) ComplianceStatus {
	status := GoodStanding
	for _, issue := range issues {
		switch issue.Kind {
		case IssueViolation:
			return StatusViolation
		case IssueWarning:
			status = StatusWarning
		}
	}
	return status
}

// Evaluation is the input every rule sees.
type Evaluation struct {
	Documents DocumentState
	Counters  HosCounters
	Limits    HosLimits
}

// Rule checks one regulation. Rules are pure: the same evaluation always
// yields the same issues.
type Rule interface {
	Check(Evaluation) []ComplianceIssue
	Name() RuleID
}

type ruleFunc struct {
	fn   func(Evaluation) []ComplianceIssue
	name RuleID
}

func (r ruleFunc) Check(e Evaluation) []ComplianceIssue { return r.fn(e) }
func (r ruleFunc) Name() RuleID                         { return r.name }

// RuleFunc wraps a function as a Rule.
//
//	noNightDriving := hosz.RuleFunc("no-night-driving", func(e hosz.Evaluation) []hosz.ComplianceIssue {
//	    if e.Counters.CurrentStatus == hosz.Driving && e.Counters.EvaluatedAt.Hour() < 5 {
//	        return []hosz.ComplianceIssue{{Kind: hosz.IssueWarning, RuleID: "no-night-driving", Message: "night driving"}}
//	    }
//	    return nil
//	})
func RuleFunc(name RuleID, fn func(Evaluation) []ComplianceIssue) Rule {
	return ruleFunc{name: name, fn: fn}
}

// Evaluator runs a fixed set of rules and concatenates their issues. Every
// breached rule is reported; nothing is suppressed.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator creates an evaluator over the given rules, run in order.
func NewEvaluator(rules ...Rule) *Evaluator {
	return &Evaluator{rules: slices.Clone(rules)}
}

// Rules returns the rules of the evaluator.
func (ev *Evaluator) Rules() []Rule {
	return slices.Clone(ev.rules)
}

// Evaluate runs every rule against the evaluation.
func (ev *Evaluator) Evaluate(e Evaluation) []ComplianceIssue {
	var issues []ComplianceIssue
	for _, r := range ev.rules {
		issues = append(issues, r.Check(e)...)
	}
	return issues
}

// DefaultRules returns the FMCSA property-carrying rule set.
func DefaultRules() []Rule {
	return []Rule{
		RuleFunc(RuleDriving11Hour, checkDriving),
		RuleFunc(RuleWindow14Hour, checkWindow),
		RuleFunc(RuleBreak30Min, checkBreak),
		RuleFunc(RuleCycle, checkCycle),
		RuleFunc(RuleDocExpiry, checkDocuments),
	}
}

var defaultEvaluator = NewEvaluator(DefaultRules()...)

// EvaluateCompliance runs the default rule set. The evaluation instant is
// counters.EvaluatedAt.
func EvaluateCompliance(counters HosCounters, limits HosLimits, documents DocumentState) []ComplianceIssue {
	return defaultEvaluator.Evaluate(Evaluation{Counters: counters, Limits: limits, Documents: documents})
}

// threshold classifies used against limit. Reaching the limit is a breach.
func threshold(used, limit, margin time.Duration) (IssueKind, bool) {
	switch {
	case used >= limit:
		return IssueViolation, true
	case margin > 0 && used >= limit-margin:
		return IssueWarning, true
	default:
		return 0, false
	}
}

func dueAt(c HosCounters, limit, used time.Duration) *time.Time {
	t := c.EvaluatedAt.Add(limit - used)
	return &t
}

func checkDriving(e Evaluation) []ComplianceIssue {
	c, l := e.Counters, e.Limits
	kind, ok := threshold(c.DrivingToday, l.MaxDrivingPerShift, l.DrivingWarningMargin)
	if !ok {
		return nil
	}
	if kind == IssueViolation {
		return []ComplianceIssue{{
			Kind:    IssueViolation,
			RuleID:  RuleDriving11Hour,
			Message: fmt.Sprintf("driving limit of %s reached: %.1f hours driven this shift", hoursLabel(l.MaxDrivingPerShift), Hours(c.DrivingToday)),
		}}
	}
	return []ComplianceIssue{{
		Kind:    IssueWarning,
		RuleID:  RuleDriving11Hour,
		Message: fmt.Sprintf("%s of driving left this shift", FormatRemaining(DrivingTimeRemaining(c, l))),
		DueDate: dueAt(c, l.MaxDrivingPerShift, c.DrivingToday),
	}}
}

func checkWindow(e Evaluation) []ComplianceIssue {
	c, l := e.Counters, e.Limits
	kind, ok := threshold(c.OnDutyToday, l.MaxOnDutyWindow, l.WindowWarningMargin)
	if !ok {
		return nil
	}
	if kind == IssueViolation {
		return []ComplianceIssue{{
			Kind:    IssueViolation,
			RuleID:  RuleWindow14Hour,
			Message: fmt.Sprintf("on-duty window of %s exhausted: %.1f hours on duty this shift", hoursLabel(l.MaxOnDutyWindow), Hours(c.OnDutyToday)),
		}}
	}
	return []ComplianceIssue{{
		Kind:    IssueWarning,
		RuleID:  RuleWindow14Hour,
		Message: fmt.Sprintf("%s left in the on-duty window", FormatRemaining(OnDutyWindowRemaining(c, l))),
		DueDate: dueAt(c, l.MaxOnDutyWindow, c.OnDutyToday),
	}}
}

func checkBreak(e Evaluation) []ComplianceIssue {
	c, l := e.Counters, e.Limits
	kind, ok := threshold(c.DrivingSinceBreak, l.BreakRequiredAfter, l.BreakWarningMargin)
	if !ok {
		return nil
	}
	switch {
	case kind == IssueViolation && c.CurrentStatus == Driving:
		return []ComplianceIssue{{
			Kind:    IssueViolation,
			RuleID:  RuleBreak30Min,
			Message: fmt.Sprintf("driving without a %s break after %.1f hours of driving", FormatRemaining(l.BreakMinimum), Hours(c.DrivingSinceBreak)),
		}}
	case kind == IssueViolation:
		return []ComplianceIssue{{
			Kind:    IssueWarning,
			RuleID:  RuleBreak30Min,
			Message: fmt.Sprintf("%s break required before driving again", FormatRemaining(l.BreakMinimum)),
		}}
	default:
		return []ComplianceIssue{{
			Kind:    IssueWarning,
			RuleID:  RuleBreak30Min,
			Message: fmt.Sprintf("break required in %s", BreakRequiredIn(c, l)),
			DueDate: dueAt(c, l.BreakRequiredAfter, c.DrivingSinceBreak),
		}}
	}
}

func checkCycle(e Evaluation) []ComplianceIssue {
	c, l := e.Counters, e.Limits
	kind, ok := threshold(c.CycleWeek, l.MaxCycleHours, l.CycleWarningMargin)
	if !ok {
		return nil
	}
	if kind == IssueViolation {
		return []ComplianceIssue{{
			Kind:    IssueViolation,
			RuleID:  RuleCycle,
			Message: fmt.Sprintf("%s/%d-day limit reached: %.1f hours on duty", hoursLabel(l.MaxCycleHours), l.CycleDays, Hours(c.CycleWeek)),
		}}
	}
	return []ComplianceIssue{{
		Kind:    IssueWarning,
		RuleID:  RuleCycle,
		Message: fmt.Sprintf("%s left in the %d-day cycle", FormatRemaining(CycleRemaining(c, l)), l.CycleDays),
		DueDate: dueAt(c, l.MaxCycleHours, c.CycleWeek),
	}}
}

func checkDocuments(e Evaluation) []ComplianceIssue {
	now := e.Counters.EvaluatedAt
	var issues []ComplianceIssue
	for _, doc := range e.Documents.Documents {
		if doc.ExpiresAt.IsZero() {
			continue
		}
		due := doc.ExpiresAt
		switch {
		case !now.Before(doc.ExpiresAt):
			issues = append(issues, ComplianceIssue{
				Kind:    IssueViolation,
				RuleID:  RuleDocExpiry,
				Message: fmt.Sprintf("%s expired on %s", doc.Kind.label(), doc.ExpiresAt.Format(time.DateOnly)),
				DueDate: &due,
			})
		case doc.ExpiresAt.Sub(now) <= e.Limits.DocumentLeadTime:
			days := int(doc.ExpiresAt.Sub(now) / Day)
			issues = append(issues, ComplianceIssue{
				Kind:    IssueWarning,
				RuleID:  RuleDocExpiry,
				Message: fmt.Sprintf("%s expires in %d days", doc.Kind.label(), days),
				DueDate: &due,
			})
		}
	}
	return issues
}

func hoursLabel(d time.Duration) string {
	return fmt.Sprintf("%g hours", d.Hours())
}
