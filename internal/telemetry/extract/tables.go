package extract

import (
	"fmt"
	"strings"
)

// CarTable maps simulator car codes to display names. It is supplied by the
// caller and only read here.
type CarTable map[int32]string

// Name returns the car's display name, or a synthesized label for codes the
// table does not know.
func (t CarTable) Name(code int32) (string, bool) {
	if name, ok := t[code]; ok {
		return name, true
	}
	return fmt.Sprintf("Unknown Car (%d)", code), false
}

// DownforceTable maps car codes to a static downforce estimate in lbs.
type DownforceTable map[int32]float64

// Estimate returns the car's downforce estimate, 0 for unknown cars.
func (t DownforceTable) Estimate(code int32) float64 {
	return t[code]
}

// Car classes reported in metadata.car.classification.
const (
	ClassUnknown   = "unknown"
	ClassKart      = "kart"
	ClassFormula   = "formula"
	ClassRally     = "rally"
	ClassDrift     = "drift"
	ClassPrototype = "prototype"
	ClassRaceCar   = "race_car"
	ClassStreet    = "street"
)

var classRules = []struct {
	class    string
	keywords []string
}{
	{ClassKart, []string{"kart"}},
	{ClassFormula, []string{"formula", "f1", "mp4/", "sf19", "sf23"}},
	{ClassRally, []string{"rally", "gr.b", "gr b"}},
	{ClassDrift, []string{"drift"}},
	{ClassPrototype, []string{"919", "ts030", "ts050", "r18", "gr010", "group c", "prototype"}},
	{ClassRaceCar, []string{"race car", "gt3", "gt4", "gt500", "gr.3", "gr.4", "gr3", "gr4",
		"gtr", "racing", "lm ", "touring car"}},
}

// ClassifyCar buckets a car by keywords in its name. Rules are checked in
// order; names matching none are street cars.
func ClassifyCar(name string) string {
	lower := strings.ToLower(name)
	for _, rule := range classRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.class
			}
		}
	}
	return ClassStreet
}
