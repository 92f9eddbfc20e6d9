package domain

import (
	"encoding/json"
	"testing"
)

func TestNutrientValueDecodesAllShapes(t *testing.T) {
	t.Parallel()

	raw := `{
		"Energy": 120,
		"Protein": "4.5 g",
		"Fat": {"amount": 1.2, "unit": "g", "value": "1.2 g"},
		"Fiber": {"amount": 3, "unit": "g"},
		"Sodium": "trace",
		"Iron": null
	}`

	var n Nutrients
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		t.Fatalf("unmarshal nutrients: %v", err)
	}

	tests := []struct {
		name   string
		amount float64
		unit   string
		value  string
	}{
		{"Energy", 120, "", "120"},
		{"Protein", 4.5, "g", "4.5 g"},
		{"Fat", 1.2, "g", "1.2 g"},
		{"Fiber", 3, "g", "3 g"},
		{"Sodium", 0, "", "trace"},
		{"Iron", 0, "", ""},
	}
	for _, tt := range tests {
		got, ok := n[tt.name]
		if !ok {
			t.Errorf("%s: missing", tt.name)
			continue
		}
		if got.Amount != tt.amount || got.Unit != tt.unit || got.Value != tt.value {
			t.Errorf("%s: got %+v, want amount=%v unit=%q value=%q", tt.name, got, tt.amount, tt.unit, tt.value)
		}
	}
}

func TestParseNutrientString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		amount float64
		unit   string
		ok     bool
	}{
		{"120 kcal", 120, "kcal", true},
		{"12.5g", 12.5, "g", true},
		{"  7 mg ", 7, "mg", true},
		{"42", 42, "", true},
		{"n/a", 0, "", false},
		{"", 0, "", false},
		{"1.2.3 g", 0, "", false},
	}
	for _, tt := range tests {
		amount, unit, ok := ParseNutrientString(tt.in)
		if amount != tt.amount || unit != tt.unit || ok != tt.ok {
			t.Errorf("ParseNutrientString(%q) = (%v, %q, %v), want (%v, %q, %v)",
				tt.in, amount, unit, ok, tt.amount, tt.unit, tt.ok)
		}
	}
}

func TestFoodRecommendationInfoShapes(t *testing.T) {
	t.Parallel()

	t.Run("object", func(t *testing.T) {
		var r FoodRecommendation
		err := json.Unmarshal([]byte(`{"comida":"soup1","display_name":"Sopa de verduras","info":{"nutrientes":{"Energy":120}}}`), &r)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if r.Info == nil {
			t.Fatal("expected info")
		}
		if got, _ := r.Info.Nutrientes.Amount("Energy"); got != 120 {
			t.Errorf("Energy = %v, want 120", got)
		}
	})

	t.Run("list takes first", func(t *testing.T) {
		var r FoodRecommendation
		err := json.Unmarshal([]byte(`{"comida":"caldo_de_pollo","info":[{"nombre":"Chicken broth","fdcId":7},{"nombre":"Other"}]}`), &r)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if r.Info == nil || r.Info.FdcID != 7 {
			t.Fatalf("expected first search result, got %+v", r.Info)
		}
		if r.DisplayName != "caldo de pollo" {
			t.Errorf("DisplayName = %q, want derived from comida", r.DisplayName)
		}
	})

	t.Run("null", func(t *testing.T) {
		var r FoodRecommendation
		if err := json.Unmarshal([]byte(`{"comida":"x","display_name":"X","info":null}`), &r); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if r.Info != nil {
			t.Errorf("expected nil info, got %+v", r.Info)
		}
	})
}
