package entities

import (
	"fmt"
	"strings"

	apperrors "github.com/dealsight/backend/pkg/errors"
)

// CatchAll is the fallback value the LLM uses when it cannot confidently
// place a transcript in a known category.
const CatchAll = "Otro"

// Fixed, ordered category domains. Order matters: the feature encoder assigns
// one-hot indexes by position, so values must never be reordered or removed,
// only appended.
var (
	IndustryDomain = []string{
		"Tecnología",
		"Salud",
		"Educación",
		"Finanzas",
		"Retail",
		"Manufactura",
		"Inmobiliaria",
		"Turismo",
		"Alimentos y Bebidas",
		"Logística",
		"Marketing",
		"Legal",
		"Construcción",
		"Automotriz",
		"Belleza",
		"Fitness",
		"Consultoría",
		"Entretenimiento",
		CatchAll,
	}

	CompanySizeDomain = []string{
		"1-10",
		"11-50",
		"51-200",
		"200+",
	}

	MainPainPointDomain = []string{
		"Respuesta lenta a clientes",
		"Pérdida de leads",
		"Atención fuera de horario",
		"Volumen alto de consultas",
		"Seguimiento manual",
		"Falta de integración",
		"Costos de personal",
		"Desorganización de conversaciones",
		CatchAll,
	}

	DiscoverySourceDomain = []string{
		"Redes sociales",
		"Recomendación",
		"Búsqueda en Google",
		"Publicidad",
		"Evento",
		"Email",
		CatchAll,
	}

	UseCaseDomain = []string{
		"Ventas",
		"Soporte",
		"Agendamiento",
		"Cobranza",
		"Marketing",
		"Operaciones",
		CatchAll,
	}

	VolumeTrendDomain = []string{
		"Creciente",
		"Estable",
		"Decreciente",
		"Variable",
	}
)

// Validate checks every enum-backed field against its domain and returns a
// validation error naming the offending fields. Empty weekly volume is legal
// (encodes to 0); negative volume is not.
func (d *CategoryData) Validate() error {
	var invalid []string

	if !inDomain(IndustryDomain, d.Industry) {
		invalid = append(invalid, fmt.Sprintf("industry=%q", d.Industry))
	}
	if !inDomain(CompanySizeDomain, d.CompanySize) {
		invalid = append(invalid, fmt.Sprintf("company_size=%q", d.CompanySize))
	}
	if !inDomain(MainPainPointDomain, d.MainPainPoint) {
		invalid = append(invalid, fmt.Sprintf("main_pain_point=%q", d.MainPainPoint))
	}
	if !inDomain(DiscoverySourceDomain, d.DiscoverySource) {
		invalid = append(invalid, fmt.Sprintf("discovery_source=%q", d.DiscoverySource))
	}
	if !inDomain(UseCaseDomain, d.UseCase) {
		invalid = append(invalid, fmt.Sprintf("use_case=%q", d.UseCase))
	}
	if !inDomain(VolumeTrendDomain, d.VolumeTrend) {
		invalid = append(invalid, fmt.Sprintf("volume_trend=%q", d.VolumeTrend))
	}
	if d.WeeklyContactVolume < 0 {
		invalid = append(invalid, fmt.Sprintf("weekly_contact_volume=%d", d.WeeklyContactVolume))
	}

	if len(invalid) > 0 {
		return apperrors.NewValidationError("category data outside known domains: " + strings.Join(invalid, ", "))
	}
	return nil
}

// Uncategorizable reports whether the extraction fell back to the catch-all
// on a field predictions depend on, and names those fields.
func (d *CategoryData) Uncategorizable() (bool, []string) {
	var fields []string
	if d.Industry == CatchAll {
		fields = append(fields, "industry")
	}
	if d.MainPainPoint == CatchAll {
		fields = append(fields, "main_pain_point")
	}
	return len(fields) > 0, fields
}

func inDomain(domain []string, value string) bool {
	for _, v := range domain {
		if v == value {
			return true
		}
	}
	return false
}
