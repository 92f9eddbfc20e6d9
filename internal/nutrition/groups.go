package nutrition

import (
	"maps"
	"slices"
	"strings"

	"github.com/ashureev/nutribot/internal/domain"
)

var macroNutrients = []struct {
	name  string
	label string
}{
	{"Energy", "Energía"},
	{"Protein", "Proteína"},
	{"Total lipid (fat)", "Grasas"},
	{"Carbohydrate, by difference", "Carbohidratos"},
	{"Fiber, total dietary", "Fibra"},
}

var minerals = []string{
	"Calcium, Ca",
	"Iron, Fe",
	"Potassium, K",
	"Sodium, Na",
	"Magnesium, Mg",
	"Phosphorus, P",
	"Zinc, Zn",
}

// Entry is one nutrient in a display group.
type Entry struct {
	Name  string               `json:"name"`
	Label string               `json:"label"`
	Value domain.NutrientValue `json:"value"`
}

// Groups splits nutrients into macronutrients, vitamins, minerals and the
// rest. Macros and minerals keep a fixed order; the others sort by name.
type Groups struct {
	Macros   []Entry `json:"macros"`
	Vitamins []Entry `json:"vitamins"`
	Minerals []Entry `json:"minerals"`
	Other    []Entry `json:"other"`
}

// Group categorizes n.
func Group(n domain.Nutrients) Groups {
	g := Groups{
		Macros:   []Entry{},
		Vitamins: []Entry{},
		Minerals: []Entry{},
		Other:    []Entry{},
	}
	used := make(map[string]bool, len(n))

	for _, m := range macroNutrients {
		if v, ok := n[m.name]; ok {
			g.Macros = append(g.Macros, Entry{Name: m.name, Label: m.label, Value: v})
			used[m.name] = true
		}
	}
	for _, name := range minerals {
		if v, ok := n[name]; ok {
			g.Minerals = append(g.Minerals, Entry{Name: name, Label: name, Value: v})
			used[name] = true
		}
	}

	for _, name := range slices.Sorted(maps.Keys(n)) {
		if used[name] {
			continue
		}
		e := Entry{Name: name, Label: name, Value: n[name]}
		if strings.Contains(strings.ToLower(name), "vitamin") {
			g.Vitamins = append(g.Vitamins, e)
		} else {
			g.Other = append(g.Other, e)
		}
	}
	return g
}
