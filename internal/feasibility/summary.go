package feasibility

import (
	"gonum.org/v1/gonum/stat"
)

// Summary condenses a G result.
type Summary struct {
	Points    int `json:"points"`
	Scenarios int `json:"scenarios"`
	Feasible  int `json:"feasible"`

	// Fractions[i] is the feasible share of design point i.
	Fractions []float64 `json:"fractions"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`

	// Robust counts design points feasible in every scenario.
	Robust int `json:"robust"`
}

func Summarize(g [][][]float64) Summary {
	s := Summary{Points: len(g), Fractions: make([]float64, len(g))}
	for i, col := range g {
		ok := 0
		for _, row := range col {
			if row[0] >= 0 {
				ok++
			}
		}
		s.Scenarios += len(col)
		s.Feasible += ok
		if len(col) > 0 {
			s.Fractions[i] = float64(ok) / float64(len(col))
		}
		if ok == len(col) {
			s.Robust++
		}
	}
	switch len(g) {
	case 0:
	case 1:
		s.Mean = s.Fractions[0]
	default:
		s.Mean, s.StdDev = stat.MeanStdDev(s.Fractions, nil)
	}
	return s
}
