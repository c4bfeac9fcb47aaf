package models

// ProtocolDecision is the result of one cultural-protocol check.
// A denial is terminal for that story/context pair for the run; warnings are
// advisory and never block.
type ProtocolDecision struct {
	Allowed  bool     `json:"allowed"`
	Reason   string   `json:"reason,omitempty"` // set on denial, always specific
	Warnings []string `json:"warnings,omitempty"`
}

// ApprovalStatus classifies the elder-approval state of a story.
type ApprovalStatus string

const (
	ApprovalNotRequired ApprovalStatus = "not_required"
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalExpired     ApprovalStatus = "expired"
)

// ProtocolStatus aggregates the protocol checks for one story into a summary
// used for audit and reporting screens. Gating decisions never read this
// summary; they always call the specific predicate.
type ProtocolStatus struct {
	StoryID                  uint             `json:"story_id"`
	HasTraditionalKnowledge  bool             `json:"has_traditional_knowledge"`
	ApprovalStatus           ApprovalStatus   `json:"approval_status"`
	Sensitivity              SensitivityLevel `json:"sensitivity"`
	PublicDisplayAllowed     bool             `json:"public_display_allowed"`
	AutoPlaceAllowed         bool             `json:"auto_place_allowed"`
	Warnings                 []string         `json:"warnings,omitempty"`
}
