package openai

import (
	"fmt"
	"strings"

	"github.com/dealsight/backend/internal/domain/entities"
)

// categorizationSystemPrompt instructs the model to emit strict JSON matching
// the CategoryData shape. The allowed values are generated from the fixed
// domains so prompt and encoder can never drift apart.
func categorizationSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an assistant that analyzes sales-meeting transcripts for a customer-messaging product. ")
	b.WriteString("Respond ONLY with a JSON object, no prose, with exactly these fields:\n")
	b.WriteString(`{"industry": string, "company_size": string, "weekly_contact_volume": number, `)
	b.WriteString(`"volume_trend": string, "main_pain_point": string, "current_solution": string, `)
	b.WriteString(`"discovery_source": string, "use_case": string, "integration_needs": [string], `)
	b.WriteString(`"query_topics": [string], "summary": string}` + "\n\n")
	b.WriteString("Allowed values (use \"" + entities.CatchAll + "\" only when genuinely unsure):\n")
	b.WriteString("industry: " + strings.Join(entities.IndustryDomain, " | ") + "\n")
	b.WriteString("company_size: " + strings.Join(entities.CompanySizeDomain, " | ") + "\n")
	b.WriteString("main_pain_point: " + strings.Join(entities.MainPainPointDomain, " | ") + "\n")
	b.WriteString("discovery_source: " + strings.Join(entities.DiscoverySourceDomain, " | ") + "\n")
	b.WriteString("use_case: " + strings.Join(entities.UseCaseDomain, " | ") + "\n")
	b.WriteString("volume_trend: " + strings.Join(entities.VolumeTrendDomain, " | ") + "\n")
	b.WriteString("weekly_contact_volume is the client's estimated weekly inbound contact count as an integer. ")
	b.WriteString("summary is 2-3 sentences in the transcript's language.")
	return b.String()
}

func buildCategorizationUserPrompt(transcription string) string {
	return fmt.Sprintf("Categorize the following sales-meeting transcript:\n\n%s", transcription)
}
