package services

import (
	"time"

	"github.com/Acurioustractor/palm-island-repository-sub002/models"
)

// Cultural protocol gate. These checks run before any scoring or placement
// logic because a wrongful disclosure of restricted cultural material cannot
// be undone. Every function here is pure: no side effects, no errors, each
// returns an allow/deny decision with a specific reason and any advisory
// warnings.

// Denial reasons. Each is fixed and distinct so audit trails and reports can
// be matched exactly.
const (
	ReasonRestrictedContent    = "Story contains restricted cultural content"
	ReasonNonPublicAccess      = "Story access level does not permit public display"
	ReasonNotPublic            = "Story is not marked for public display"
	ReasonElderApprovalMissing = "Story contains traditional knowledge and requires elder approval before public display"
	ReasonManualCurationOnly   = "Story contains high-sensitivity traditional knowledge and requires manual curation, not automatic placement"
	ReasonContextNotPermitted  = "High-sensitivity story may not be placed in this page context"
)

// Advisory warnings attached to allowed decisions.
const (
	WarningCulturalContext   = "High sensitivity content: ensure cultural context is displayed alongside the story"
	WarningMediumSensitivity = "Medium sensitivity content: review placement periodically"
	WarningContextFraming    = "Traditional knowledge story placed outside a cultural context: verify framing is appropriate"
)

// elderApprovalValidity is how long an elder approval remains current.
const elderApprovalValidity = 2 * 365 * 24 * time.Hour

// traditionalKnowledgeContexts lists the pages where traditional-knowledge
// stories can appear without a framing warning.
var traditionalKnowledgeContexts = map[string]bool{
	"culture": true,
	"elders":  true,
	"history": true,
	"home":    true,
}

// highSensitivityContexts is the narrower allow-list for high-sensitivity
// stories; placement anywhere else is denied outright.
var highSensitivityContexts = map[string]bool{
	"culture": true,
	"elders":  true,
}

// CanDisplayPublicly decides whether a story may be shown publicly at all.
// Story.AutoIncludeEligible is the canonical public-eligibility property;
// the switch below only refines a denial into its specific audited reason.
// Missing elder approval for traditional knowledge is a further terminal
// denial on top of it.
func CanDisplayPublicly(story *models.Story) models.ProtocolDecision {
	if !story.AutoIncludeEligible() {
		switch {
		case story.SensitivityLevel.AtLeast(models.SensitivityRestricted):
			return models.ProtocolDecision{Allowed: false, Reason: ReasonRestrictedContent}
		case story.AccessLevel != models.AccessPublic:
			return models.ProtocolDecision{Allowed: false, Reason: ReasonNonPublicAccess}
		default:
			return models.ProtocolDecision{Allowed: false, Reason: ReasonNotPublic}
		}
	}
	if story.ContainsTraditionalKnowledge && story.ElderApprovalRequired && !story.ElderApprovalGiven {
		return models.ProtocolDecision{Allowed: false, Reason: ReasonElderApprovalMissing}
	}

	decision := models.ProtocolDecision{Allowed: true}
	if story.SensitivityLevel.AtLeast(models.SensitivityHigh) {
		decision.Warnings = append(decision.Warnings, WarningCulturalContext)
	}
	return decision
}

// CanAutoPlace decides whether a story may be placed by the engine without a
// human in the loop. High-sensitivity traditional knowledge always requires
// manual curation even when public display is allowed.
func CanAutoPlace(story *models.Story) models.ProtocolDecision {
	decision := CanDisplayPublicly(story)
	if !decision.Allowed {
		return decision
	}
	if story.ContainsTraditionalKnowledge && story.SensitivityLevel.AtLeast(models.SensitivityHigh) {
		return models.ProtocolDecision{Allowed: false, Reason: ReasonManualCurationOnly}
	}
	if story.SensitivityLevel == models.SensitivityMedium {
		decision.Warnings = append(decision.Warnings, WarningMediumSensitivity)
	}
	return decision
}

// CanPlaceInContext decides whether a story may be placed on the given page.
// Traditional knowledge outside a cultural context draws a framing warning;
// high sensitivity outside the narrow context list is denied.
func CanPlaceInContext(story *models.Story, page string) models.ProtocolDecision {
	decision := CanAutoPlace(story)
	if !decision.Allowed {
		return decision
	}
	if story.ContainsTraditionalKnowledge && !traditionalKnowledgeContexts[page] {
		decision.Warnings = append(decision.Warnings, WarningContextFraming)
	}
	if story.SensitivityLevel.AtLeast(models.SensitivityHigh) && !highSensitivityContexts[page] {
		return models.ProtocolDecision{Allowed: false, Reason: ReasonContextNotPermitted}
	}
	return decision
}

// ElderApprovalIsCurrent reports whether the story's elder approval exists
// and was given within the last two years of the reference time. Approvals
// without a recorded date cannot be verified and are treated as stale.
func ElderApprovalIsCurrent(story *models.Story, now time.Time) bool {
	if !story.ElderApprovalGiven || story.ElderApprovalDate == nil {
		return false
	}
	return now.Sub(*story.ElderApprovalDate) <= elderApprovalValidity
}

// StoryProtocolStatus aggregates the gate checks into a summary for audit and
// reporting screens. Gating always calls the specific predicates; this
// summary is never consulted for a placement decision.
func StoryProtocolStatus(story *models.Story, now time.Time) models.ProtocolStatus {
	display := CanDisplayPublicly(story)
	autoPlace := CanAutoPlace(story)

	status := models.ProtocolStatus{
		StoryID:                 story.ID,
		HasTraditionalKnowledge: story.ContainsTraditionalKnowledge,
		Sensitivity:             story.SensitivityLevel,
		PublicDisplayAllowed:    display.Allowed,
		AutoPlaceAllowed:        autoPlace.Allowed,
	}

	switch {
	case !story.ElderApprovalRequired:
		status.ApprovalStatus = models.ApprovalNotRequired
	case !story.ElderApprovalGiven:
		status.ApprovalStatus = models.ApprovalPending
	case ElderApprovalIsCurrent(story, now):
		status.ApprovalStatus = models.ApprovalApproved
	default:
		status.ApprovalStatus = models.ApprovalExpired
		status.Warnings = append(status.Warnings, "Elder approval has expired and should be renewed")
	}

	status.Warnings = append(status.Warnings, display.Warnings...)
	for _, w := range autoPlace.Warnings {
		if !containsString(status.Warnings, w) {
			status.Warnings = append(status.Warnings, w)
		}
	}
	return status
}

// containsString is a helper to check whether a string slice holds an item.
func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
