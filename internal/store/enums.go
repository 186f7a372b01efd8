package store

// Enum values mirror the CHECK constraints in the schema. The severity,
// effort, and impact scales are ordinal; the maps below give their
// positions for scoring.

var FeedbackSources = []string{"linear", "google_forms", "slack", "custom", "gong", "excel_online", "jira"}

var FeedbackCategories = []string{"uncategorized", "bug", "feature_request", "complaint"}

var FeedbackPriorities = []string{"unset", "p1", "p2", "p3", "p4"}

var InsightTypes = []string{"problem", "opportunity", "trend", "risk", "user_need"}

var InsightStatuses = []string{"discovered", "validated", "in_progress", "addressed", "dismissed"}

var Severities = []string{"informational", "minor", "moderate", "major", "critical"}

var IdeaTypes = []string{"quick_win", "feature", "improvement", "process_change", "investigation"}

var IdeaStatuses = []string{"proposed", "under_review", "approved", "in_development", "completed", "rejected"}

var EffortEstimates = []string{"trivial", "small", "medium", "large", "extra_large"}

var ImpactEstimates = []string{"minimal", "low", "moderate", "high", "transformational"}

var SegmentTypes = []string{"user_segment", "internal_team", "customer_tier", "use_case_group", "geographic_region"}

var RelationshipTypes = []string{"complementary", "alternative", "prerequisite", "conflicts", "extends"}

var PersonaArchetypes = []string{"data_driven", "user_advocate", "strategist", "innovator", "pragmatist"}

var (
	severityOrdinals = ordinals(Severities)
	effortOrdinals   = ordinals(EffortEstimates)
	impactOrdinals   = ordinals(ImpactEstimates)
)

func ordinals(values []string) map[string]int {
	m := make(map[string]int, len(values))
	for i, v := range values {
		m[v] = i
	}
	return m
}

// SeverityOrdinal returns the position of a severity on its scale, 0
// for unknown values.
func SeverityOrdinal(severity string) int {
	return severityOrdinals[severity]
}

// EffortOrdinal returns the position of an effort estimate on its
// scale, 0 for unknown values.
func EffortOrdinal(effort string) int {
	return effortOrdinals[effort]
}

// ImpactOrdinal returns the position of an impact estimate on its
// scale, 0 for unknown values.
func ImpactOrdinal(impact string) int {
	return impactOrdinals[impact]
}

// ValidEnum reports whether value is one of the allowed values.
func ValidEnum(value string, allowed []string) bool {
	for _, v := range allowed {
		if v == value {
			return true
		}
	}
	return false
}
