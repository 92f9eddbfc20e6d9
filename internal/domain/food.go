package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"strings"
)

var nutrientStringPattern = regexp.MustCompile(`^([\d.]+)\s*(.*)$`)

// FoodRecommendation is a food suggested by the backend. Comida is the
// backend's internal food key.
type FoodRecommendation struct {
	Comida      string    `json:"comida"`
	DisplayName string    `json:"display_name"`
	Info        *FoodInfo `json:"info"`
}

// FoodInfo is the food metadata attached to a recommendation.
type FoodInfo struct {
	Nombre     string    `json:"nombre,omitempty"`
	FdcID      int       `json:"fdcId,omitempty"`
	Nutrientes Nutrients `json:"nutrientes"`
}

// UnmarshalJSON accepts info as an object, a list of search results (the
// first one wins) or null.
func (r *FoodRecommendation) UnmarshalJSON(data []byte) error {
	var aux struct {
		Comida      string          `json:"comida"`
		DisplayName string          `json:"display_name"`
		Info        json.RawMessage `json:"info"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Comida = aux.Comida
	r.DisplayName = aux.DisplayName
	if r.DisplayName == "" {
		r.DisplayName = strings.ReplaceAll(aux.Comida, "_", " ")
	}
	r.Info = nil

	raw := bytes.TrimSpace(aux.Info)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return nil
	case raw[0] == '[':
		var list []FoodInfo
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("decode info list: %w", err)
		}
		if len(list) > 0 {
			r.Info = &list[0]
		}
		return nil
	default:
		var info FoodInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return fmt.Errorf("decode info: %w", err)
		}
		r.Info = &info
		return nil
	}
}

// Nutrients maps a nutrient name to its value.
type Nutrients map[string]NutrientValue

// Amount returns the numeric amount for name and whether it is present.
func (n Nutrients) Amount(name string) (float64, bool) {
	v, ok := n[name]
	if !ok {
		return 0, false
	}
	return v.Amount, true
}

// NutrientValue is a single nutrient quantity. The backend sends either a
// bare number, a display string such as "120 kcal", or a structured
// {amount, unit, value} object; all three decode into this type.
type NutrientValue struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
	Value  string  `json:"value"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *NutrientValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = NutrientValue{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = NutrientFromString(s)
		return nil
	case '{':
		var obj struct {
			Amount *float64 `json:"amount"`
			Unit   string   `json:"unit"`
			Value  string   `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Amount == nil {
			*v = NutrientFromString(obj.Value)
			if obj.Unit != "" {
				v.Unit = obj.Unit
			}
			return nil
		}
		*v = NutrientValue{Amount: *obj.Amount, Unit: obj.Unit, Value: obj.Value}
		if v.Value == "" {
			v.Value = formatNutrient(v.Amount, v.Unit)
		}
		return nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("nutrient value %s: %w", data, err)
		}
		*v = NutrientValue{Amount: f, Value: strconv.FormatFloat(f, 'f', -1, 64)}
		return nil
	}
}

// NutrientFromString parses a display string. A leading numeric token is
// taken as the amount and the remainder as the unit; strings without one
// keep a zero amount and the original text.
func NutrientFromString(s string) NutrientValue {
	amount, unit, ok := ParseNutrientString(s)
	if !ok {
		return NutrientValue{Value: s}
	}
	return NutrientValue{Amount: amount, Unit: unit, Value: s}
}

// ParseNutrientString splits "12.5 g" into (12.5, "g").
func ParseNutrientString(s string) (float64, string, bool) {
	m := nutrientStringPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, "", false
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	return amount, strings.TrimSpace(m[2]), true
}

func formatNutrient(amount float64, unit string) string {
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	if unit == "" {
		return s
	}
	return s + " " + unit
}

// FoodDetails is the nutrient detail for one food from the detail endpoint.
type FoodDetails struct {
	FdcID           int       `json:"fdcId"`
	Description     string    `json:"description"`
	BrandOwner      string    `json:"brandOwner,omitempty"`
	Ingredients     string    `json:"ingredients,omitempty"`
	PublicationDate string    `json:"publicationDate,omitempty"`
	Nutrientes      Nutrients `json:"nutrientes"`
}

// Clone returns a copy of d that shares no nutrient map with it.
func (d *FoodDetails) Clone() *FoodDetails {
	cp := *d
	cp.Nutrientes = maps.Clone(d.Nutrientes)
	return &cp
}
