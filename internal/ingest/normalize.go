// Package ingest turns raw municipal exports (CSV uploads and webhook
// payloads) into normalized record batches ready for evaluation.
package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NormalizeCurrency parses a Brazilian-formatted currency string such as
// "R$ 1.234,56" into a float. Values already in machine format ("1234.56")
// parse directly. Unparseable input normalizes to zero, matching how the
// upstream portals export empty cells.
func NormalizeCurrency(value string) float64 {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0
	}

	// Machine-formatted numbers pass through untouched.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}

	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, "$", "")
	s = nonNumeric.ReplaceAllString(s, "")
	// Brazilian grouping: dots group thousands, comma is the decimal mark.
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

var nonNumeric = regexp.MustCompile(`[^\d.,-]`)

// dateLayouts lists the formats seen across the municipal portals, most
// specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// ParseDate parses a date in any of the portal formats.
func ParseDate(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

var emergencyKeywords = []string{
	"emergencial", "urgente", "emergência", "urgencia",
	"calamidade", "desastre", "situação crítica",
}

// DetectEmergency reports whether a description or process number marks an
// emergency purchase, which skips competitive bidding.
func DetectEmergency(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range emergencyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var positionNames = map[string]string{
	"diretor":      "Diretor",
	"coordenador":  "Coordenador",
	"gerente":      "Gerente",
	"supervisor":   "Supervisor",
	"analista":     "Analista",
	"auxiliar":     "Auxiliar",
	"assistente":   "Assistente",
	"técnico":      "Técnico",
	"especialista": "Especialista",
}

// StandardizePosition collapses the many spellings of a job title into one
// canonical name so that position grouping is meaningful.
func StandardizePosition(position string) string {
	s := strings.TrimSpace(position)
	if s == "" {
		return "UNKNOWN"
	}
	lower := strings.ToLower(s)
	for key, canonical := range positionNames {
		if strings.Contains(lower, key) {
			return canonical
		}
	}
	return titleCase(s)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// catalogMapping maps description keywords to CATMAT/CATSER codes used to key
// the market reference-price lookups.
var catalogMapping = map[string]string{
	"material_escritorio": "CATMAT_001",
	"combustivel":         "CATMAT_002",
	"servico_limpeza":     "CATSER_001",
	"consultoria":         "CATSER_002",
}

// CatalogUnknown marks descriptions that match no catalog entry.
const CatalogUnknown = "UNKNOWN"

// MapCatalogCode maps an item description to a CATMAT/CATSER code by keyword.
func MapCatalogCode(description string) string {
	lower := strings.ToLower(description)
	for keyword, code := range catalogMapping {
		if strings.Contains(lower, keyword) {
			return code
		}
	}
	return CatalogUnknown
}

var contractCategories = []struct {
	name     string
	keywords []string
}{
	{"consultoria", []string{"consultoria", "consultor", "assessoria"}},
	{"limpeza", []string{"limpeza", "higienização", "conservação"}},
	{"segurança", []string{"segurança", "vigilância", "monitoramento"}},
	{"tecnologia", []string{"sistema", "software", "tecnologia", "informática"}},
	{"construção", []string{"obra", "construção", "reforma", "manutenção"}},
	{"transporte", []string{"transporte", "combustível", "veículo"}},
	{"material", []string{"material", "equipamento", "suprimento"}},
}

// CategorizeContract buckets a contract by its description keywords.
func CategorizeContract(description string) string {
	lower := strings.ToLower(description)
	for _, cat := range contractCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return cat.name
			}
		}
	}
	return "outros"
}
