package store

import (
	"math"
	"time"
)

// Feedback is a raw customer feedback item from one of the ingestion
// sources. The AI categorization stage fills the ai_* fields; the
// insight pipeline only reads and stamps insight_processed_at.
type Feedback struct {
	ID                 int64      `db:"id"`
	Source             string     `db:"source"`
	ExternalID         string     `db:"external_id"`
	Title              string     `db:"title"`
	Content            string     `db:"content"`
	AuthorName         string     `db:"author_name"`
	Category           string     `db:"category"`
	Priority           string     `db:"priority"`
	AISummary          string     `db:"ai_summary"`
	AIConfidence       float64    `db:"ai_confidence"`
	AIProcessedAt      *time.Time `db:"ai_processed_at"`
	InsightProcessedAt *time.Time `db:"insight_processed_at"`
	CreatedAt          time.Time  `db:"created_at"`
}

// Insight is a discovered problem, opportunity, trend, risk, or user
// need synthesized from one or more feedback items.
type Insight struct {
	ID                 int64      `db:"id"`
	Title              string     `db:"title"`
	Description        string     `db:"description"`
	InsightType        string     `db:"insight_type"`
	Severity           string     `db:"severity"`
	ConfidenceScore    int        `db:"confidence_score"`
	AffectedUsersCount int        `db:"affected_users_count"`
	FeedbackCount      int        `db:"feedback_count"`
	Status             string     `db:"status"`
	PersonaID          *int64     `db:"persona_id"`
	EvidenceJSON       string     `db:"evidence"`
	Evidence           []string   `db:"-"`
	DiscoveredAt       *time.Time `db:"discovered_at"`
	AddressedAt        *time.Time `db:"addressed_at"`
	CreatedAt          time.Time  `db:"created_at"`
}

// Theme is a named cluster of related insights. Name is the dedup key,
// matched case-insensitively.
type Theme struct {
	ID                    int64      `db:"id"`
	Name                  string     `db:"name"`
	Description           string     `db:"description"`
	PriorityScore         int        `db:"priority_score"`
	InsightCount          int        `db:"insight_count"`
	AffectedUsersEstimate int        `db:"affected_users_estimate"`
	AnalyzedAt            *time.Time `db:"analyzed_at"`
	CreatedAt             time.Time  `db:"created_at"`
}

// Idea is a proposed solution addressing one or more insights.
type Idea struct {
	ID                  int64     `db:"id"`
	Title               string    `db:"title"`
	Description         string    `db:"description"`
	IdeaType            string    `db:"idea_type"`
	EffortEstimate      string    `db:"effort_estimate"`
	ImpactEstimate      string    `db:"impact_estimate"`
	ConfidenceScore     int       `db:"confidence_score"`
	Status              string    `db:"status"`
	PersonaID           *int64    `db:"persona_id"`
	Rationale           string    `db:"rationale"`
	Risks               string    `db:"risks"`
	ImplementationJSON  string    `db:"implementation_hints"`
	ImplementationHints []string  `db:"-"`
	CreatedAt           time.Time `db:"created_at"`
}

// ROIScore ranks an idea by impact relative to effort:
// round(impact / (effort + 1) * 100).
func (i *Idea) ROIScore() int {
	impact := ImpactOrdinal(i.ImpactEstimate)
	effort := EffortOrdinal(i.EffortEstimate)
	return int(math.Round(float64(impact) / float64(effort+1) * 100))
}

// StakeholderSegment is a group affected by one or more insights.
// Name is the dedup key, matched case-insensitively.
type StakeholderSegment struct {
	ID                  int64     `db:"id"`
	Name                string    `db:"name"`
	SegmentType         string    `db:"segment_type"`
	Description         string    `db:"description"`
	SizeEstimate        int       `db:"size_estimate"`
	EngagementPriority  int       `db:"engagement_priority"`
	EngagementStrategy  string    `db:"engagement_strategy"`
	CharacteristicsJSON string    `db:"characteristics"`
	Characteristics     []string  `db:"-"`
	CreatedAt           time.Time `db:"created_at"`
}

// Persona is an analytical viewpoint whose system prompt is appended
// to each stage's base prompt.
type Persona struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	Archetype    string    `db:"archetype"`
	Description  string    `db:"description"`
	SystemPrompt string    `db:"system_prompt"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
}

// FeedbackInsight links a feedback item to an insight it supports.
type FeedbackInsight struct {
	ID             int64     `db:"id"`
	FeedbackID     int64     `db:"feedback_id"`
	InsightID      int64     `db:"insight_id"`
	RelevanceScore float64   `db:"relevance_score"`
	CreatedAt      time.Time `db:"created_at"`
}

// InsightTheme links an insight to a theme.
type InsightTheme struct {
	ID             int64     `db:"id"`
	InsightID      int64     `db:"insight_id"`
	ThemeID        int64     `db:"theme_id"`
	RelevanceScore float64   `db:"relevance_score"`
	CreatedAt      time.Time `db:"created_at"`
}

// IdeaInsight links an idea to an insight it addresses.
type IdeaInsight struct {
	ID                 int64     `db:"id"`
	IdeaID             int64     `db:"idea_id"`
	InsightID          int64     `db:"insight_id"`
	AddressLevel       int       `db:"address_level"`
	AddressDescription string    `db:"address_description"`
	CreatedAt          time.Time `db:"created_at"`
}

// AddressLabel describes how fully the idea resolves the insight.
func (ii *IdeaInsight) AddressLabel() string {
	switch {
	case ii.AddressLevel >= 4:
		return "Fully Addresses"
	case ii.AddressLevel == 3:
		return "Mostly Addresses"
	case ii.AddressLevel == 2:
		return "Partially Addresses"
	case ii.AddressLevel == 1:
		return "Slightly Addresses"
	default:
		return "Tangentially Related"
	}
}

// InsightStakeholder links an insight to an affected stakeholder segment.
type InsightStakeholder struct {
	ID                int64     `db:"id"`
	InsightID         int64     `db:"insight_id"`
	SegmentID         int64     `db:"segment_id"`
	ImpactLevel       int       `db:"impact_level"`
	ImpactDescription string    `db:"impact_description"`
	CreatedAt         time.Time `db:"created_at"`
}

// IdeaRelationship is a typed edge between two ideas. At most one row
// exists per ordered pair; prerequisite edges are directional.
type IdeaRelationship struct {
	ID               int64     `db:"id"`
	IdeaID           int64     `db:"idea_id"`
	RelatedIdeaID    int64     `db:"related_idea_id"`
	RelationshipType string    `db:"relationship_type"`
	Explanation      string    `db:"explanation"`
	CreatedAt        time.Time `db:"created_at"`
}

// PulseReport is a periodic digest of feedback activity.
type PulseReport struct {
	ID            int64     `db:"id"`
	PeriodStart   time.Time `db:"period_start"`
	PeriodEnd     time.Time `db:"period_end"`
	FeedbackCount int       `db:"feedback_count"`
	Summary       string    `db:"summary"`
	CreatedAt     time.Time `db:"created_at"`
}

// RunReport records the outcome of one full pipeline run.
type RunReport struct {
	ID                     string    `db:"id"`
	StartedAt              time.Time `db:"started_at"`
	FinishedAt             time.Time `db:"finished_at"`
	FeedbacksAnalyzed      int       `db:"feedbacks_analyzed"`
	InsightsCreated        int       `db:"insights_created"`
	ThemesCreated          int       `db:"themes_created"`
	IdeasCreated           int       `db:"ideas_created"`
	StakeholdersIdentified int       `db:"stakeholders_identified"`
	RelationshipsLinked    int       `db:"relationships_linked"`
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalFeedback     int
	ProcessedFeedback int
	ReadyFeedback     int
	Insights          int
	Themes            int
	Ideas             int
	Segments          int
	Relationships     int
	PulseReports      int
}
