package entities

import "time"

// Categorization is one LLM-derived structured record, at most one per Client.
// Presence of a Categorization is the "categorized" predicate used throughout
// the pipeline. Created once by the categorization worker, never updated.
type Categorization struct {
	ID            string       `json:"id"`
	ClientID      string       `json:"client_id"`
	Data          CategoryData `json:"data"`
	LLMProvider   string       `json:"llm_provider"`
	Model         string       `json:"model"`
	PromptVersion string       `json:"prompt_version"`
	ProcessedAt   time.Time    `json:"processed_at"`
}

// CategoryData is the closed, tagged category structure extracted from a
// meeting transcript. Enum-backed fields are validated against the fixed
// domains at parse time (see Validate) so unexpected LLM output fails loudly
// instead of silently encoding to zeros downstream.
type CategoryData struct {
	Industry            string   `json:"industry"`
	CompanySize         string   `json:"company_size"`
	WeeklyContactVolume int      `json:"weekly_contact_volume"`
	VolumeTrend         string   `json:"volume_trend"`
	MainPainPoint       string   `json:"main_pain_point"`
	CurrentSolution     string   `json:"current_solution"`
	DiscoverySource     string   `json:"discovery_source"`
	UseCase             string   `json:"use_case"`
	IntegrationNeeds    []string `json:"integration_needs"`
	QueryTopics         []string `json:"query_topics"`
	Summary             string   `json:"summary"`
}
