package store

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS personas (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    archetype TEXT NOT NULL CHECK(archetype IN ('data_driven', 'user_advocate', 'strategist', 'innovator', 'pragmatist')),
    description TEXT NOT NULL DEFAULT '',
    system_prompt TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS feedbacks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL CHECK(source IN ('linear', 'google_forms', 'slack', 'custom', 'gong', 'excel_online', 'jira')),
    external_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    author_name TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT 'uncategorized' CHECK(category IN ('uncategorized', 'bug', 'feature_request', 'complaint')),
    priority TEXT NOT NULL DEFAULT 'unset' CHECK(priority IN ('unset', 'p1', 'p2', 'p3', 'p4')),
    ai_summary TEXT NOT NULL DEFAULT '',
    ai_confidence REAL NOT NULL DEFAULT 0,
    ai_processed_at DATETIME,
    insight_processed_at DATETIME,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    insight_type TEXT NOT NULL CHECK(insight_type IN ('problem', 'opportunity', 'trend', 'risk', 'user_need')),
    severity TEXT NOT NULL CHECK(severity IN ('informational', 'minor', 'moderate', 'major', 'critical')),
    confidence_score INTEGER NOT NULL DEFAULT 0,
    affected_users_count INTEGER NOT NULL DEFAULT 0,
    feedback_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'discovered' CHECK(status IN ('discovered', 'validated', 'in_progress', 'addressed', 'dismissed')),
    persona_id INTEGER REFERENCES personas(id),
    evidence TEXT NOT NULL DEFAULT '[]',
    discovered_at DATETIME,
    addressed_at DATETIME,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS themes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    priority_score INTEGER NOT NULL DEFAULT 0,
    insight_count INTEGER NOT NULL DEFAULT 0,
    affected_users_estimate INTEGER NOT NULL DEFAULT 0,
    analyzed_at DATETIME,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ideas (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    idea_type TEXT NOT NULL CHECK(idea_type IN ('quick_win', 'feature', 'improvement', 'process_change', 'investigation')),
    effort_estimate TEXT NOT NULL CHECK(effort_estimate IN ('trivial', 'small', 'medium', 'large', 'extra_large')),
    impact_estimate TEXT NOT NULL CHECK(impact_estimate IN ('minimal', 'low', 'moderate', 'high', 'transformational')),
    confidence_score INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'proposed' CHECK(status IN ('proposed', 'under_review', 'approved', 'in_development', 'completed', 'rejected')),
    persona_id INTEGER REFERENCES personas(id),
    rationale TEXT NOT NULL DEFAULT '',
    risks TEXT NOT NULL DEFAULT '',
    implementation_hints TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS stakeholder_segments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    segment_type TEXT NOT NULL CHECK(segment_type IN ('user_segment', 'internal_team', 'customer_tier', 'use_case_group', 'geographic_region')),
    description TEXT NOT NULL DEFAULT '',
    size_estimate INTEGER NOT NULL DEFAULT 0,
    engagement_priority INTEGER NOT NULL DEFAULT 0,
    engagement_strategy TEXT NOT NULL DEFAULT '',
    characteristics TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback_insights (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feedback_id INTEGER NOT NULL REFERENCES feedbacks(id),
    insight_id INTEGER NOT NULL REFERENCES insights(id),
    relevance_score REAL NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS insight_themes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    insight_id INTEGER NOT NULL REFERENCES insights(id),
    theme_id INTEGER NOT NULL REFERENCES themes(id),
    relevance_score REAL NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS idea_insights (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    idea_id INTEGER NOT NULL REFERENCES ideas(id),
    insight_id INTEGER NOT NULL REFERENCES insights(id),
    address_level INTEGER NOT NULL DEFAULT 0,
    address_description TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS insight_stakeholders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    insight_id INTEGER NOT NULL REFERENCES insights(id),
    segment_id INTEGER NOT NULL REFERENCES stakeholder_segments(id),
    impact_level INTEGER NOT NULL DEFAULT 0,
    impact_description TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS idea_relationships (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    idea_id INTEGER NOT NULL REFERENCES ideas(id),
    related_idea_id INTEGER NOT NULL REFERENCES ideas(id),
    relationship_type TEXT NOT NULL CHECK(relationship_type IN ('complementary', 'alternative', 'prerequisite', 'conflicts', 'extends')),
    explanation TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    CHECK(idea_id != related_idea_id)
);

CREATE TABLE IF NOT EXISTS pulse_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    period_start DATETIME NOT NULL,
    period_end DATETIME NOT NULL,
    feedback_count INTEGER NOT NULL DEFAULT 0,
    summary TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_reports (
    id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    feedbacks_analyzed INTEGER NOT NULL DEFAULT 0,
    insights_created INTEGER NOT NULL DEFAULT 0,
    themes_created INTEGER NOT NULL DEFAULT 0,
    ideas_created INTEGER NOT NULL DEFAULT 0,
    stakeholders_identified INTEGER NOT NULL DEFAULT 0,
    relationships_linked INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_personas_archetype ON personas(archetype);
CREATE UNIQUE INDEX IF NOT EXISTS idx_feedbacks_source_external
    ON feedbacks(source, external_id) WHERE external_id != '';
CREATE INDEX IF NOT EXISTS idx_feedbacks_ai_processed ON feedbacks(ai_processed_at);
CREATE INDEX IF NOT EXISTS idx_feedbacks_insight_processed ON feedbacks(insight_processed_at);
CREATE INDEX IF NOT EXISTS idx_feedbacks_created ON feedbacks(created_at);
CREATE INDEX IF NOT EXISTS idx_insights_status ON insights(status);
CREATE INDEX IF NOT EXISTS idx_insights_severity ON insights(severity);
CREATE UNIQUE INDEX IF NOT EXISTS idx_themes_name_ci ON themes(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_themes_priority ON themes(priority_score);
CREATE INDEX IF NOT EXISTS idx_ideas_status ON ideas(status);
CREATE INDEX IF NOT EXISTS idx_ideas_created ON ideas(created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_segments_name_ci ON stakeholder_segments(name COLLATE NOCASE);
CREATE UNIQUE INDEX IF NOT EXISTS idx_feedback_insights_pair ON feedback_insights(feedback_id, insight_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_insight_themes_pair ON insight_themes(insight_id, theme_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_idea_insights_pair ON idea_insights(idea_id, insight_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_insight_stakeholders_pair ON insight_stakeholders(insight_id, segment_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_idea_relationships_pair ON idea_relationships(idea_id, related_idea_id);
CREATE INDEX IF NOT EXISTS idx_pulse_reports_period ON pulse_reports(period_start, period_end);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
