package extractor

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/engramhq/engram/internal/models"
)

//go:embed synonyms.yaml
var synonymsYAML []byte

// synonymTable maps lowercased free-form labels to canonical fact types.
// Built once at init from the embedded YAML so the mapping is data, not code.
var synonymTable = mustLoadSynonyms()

func mustLoadSynonyms() map[string]models.FactType {
	var raw map[string][]string
	if err := yaml.Unmarshal(synonymsYAML, &raw); err != nil {
		panic("extractor: invalid embedded synonyms.yaml: " + err.Error())
	}
	table := make(map[string]models.FactType)
	for canonical, aliases := range raw {
		t := models.FactType(canonical)
		if !t.IsValid() {
			panic("extractor: unknown canonical type in synonyms.yaml: " + canonical)
		}
		table[canonical] = t
		for _, a := range aliases {
			table[strings.ToLower(strings.TrimSpace(a))] = t
		}
	}
	return table
}

// NormalizeType maps a free-form type label onto one of the six canonical
// fact types. Unknown labels default to "fact".
func NormalizeType(label string) models.FactType {
	key := strings.ToLower(strings.TrimSpace(label))
	if t, ok := synonymTable[key]; ok {
		return t
	}
	return models.FactFact
}
