package sentiment

import (
	"regexp"
	"sort"
	"strings"
)

type crisisCategory struct {
	name     string
	keywords []string
}

// crisisCategories is ordered from most to least severe.
var crisisCategories = []crisisCategory{
	{name: "suicide_direct", keywords: []string{"suicidio", "suicidarme", "quitarme la vida", "acabar conmigo", "matarme"}},
	{name: "suicide_indirect", keywords: []string{"no quiero vivir", "mejor muerto", "sin mí estarían mejor", "no vale la pena vivir", "acabar con todo"}},
	{name: "self_harm", keywords: []string{"cortarme", "lastimarme", "hacerme daño", "autolesión", "herirme"}},
	{name: "hopelessness", keywords: []string{"sin esperanza", "no hay salida", "todo está perdido", "no puedo más", "es inútil"}},
	{name: "isolation", keywords: []string{"completamente solo", "nadie me entiende", "todos me abandonan", "aislado"}},
	{name: "desperation", keywords: []string{"desesperado", "no aguanto", "es insoportable", "no puedo seguir", "dolor insoportable"}},
}

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// DetectCrisis returns "category: keyword" entries for every crisis phrase
// found in text, most severe category first.
func DetectCrisis(text string) []string {
	cleaned := normalize(text)
	if cleaned == "" {
		return nil
	}

	var indicators []string
	for _, category := range crisisCategories {
		for _, keyword := range category.keywords {
			if strings.Contains(cleaned, keyword) {
				indicators = append(indicators, category.name+": "+keyword)
			}
		}
	}
	return indicators
}

var topicKeywords = map[string][]string{
	"ansiedad":   {"ansiedad", "ansioso", "ansiosa", "nervios", "pánico"},
	"trabajo":    {"trabajo", "jefe", "oficina", "empleo"},
	"familia":    {"familia", "madre", "padre", "hermano", "hermana", "hijos"},
	"sueño":      {"dormir", "insomnio", "sueño", "cansancio"},
	"relaciones": {"pareja", "novio", "novia", "amigos", "amistad"},
	"estudios":   {"examen", "universidad", "escuela", "estudiar"},
	"salud":      {"salud", "dolor", "enfermedad", "médico"},
}

// Topics returns the sorted set of topics mentioned across texts.
func Topics(texts ...string) []string {
	found := make(map[string]struct{})
	for _, text := range texts {
		cleaned := normalize(text)
		for topic, keywords := range topicKeywords {
			for _, keyword := range keywords {
				if strings.Contains(cleaned, keyword) {
					found[topic] = struct{}{}
					break
				}
			}
		}
	}

	topics := make([]string, 0, len(found))
	for topic := range found {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	return strings.Join(strings.Fields(punctuation.ReplaceAllString(lowered, " ")), " ")
}
