package likelihood

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
)

// LoadGroundTruth reads a ground-truth table: a header row "date,<subpop1>,
// <subpop2>,..." followed by one row per date, with empty cells treated as
// missing (§4.H "the data series ... aggregated from the ground-truth
// table"). subpopOrder fixes the column-to-index mapping so it matches the
// run's subpop ordering regardless of the file's column order.
func LoadGroundTruth(r io.Reader, subpopOrder []string) (*GroundTruth, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, perr.NewIOError("likelihood.LoadGroundTruth", err)
	}
	colForSubpop := make([]int, len(subpopOrder))
	for i, name := range subpopOrder {
		colForSubpop[i] = -1
		for c, h := range header {
			if h == name {
				colForSubpop[i] = c
				break
			}
		}
	}

	var values []float64
	days := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, perr.NewIOError("likelihood.LoadGroundTruth", err)
		}
		rowValues := make([]float64, len(subpopOrder))
		for i, col := range colForSubpop {
			if col < 0 || col >= len(row) || row[col] == "" {
				rowValues[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(row[col], 64)
			if err != nil {
				return nil, perr.NewDataError("likelihood.LoadGroundTruth", err)
			}
			rowValues[i] = v
		}
		values = append(values, rowValues...)
		days++
	}

	return &GroundTruth{Values: values, Days: days, Subpops: len(subpopOrder)}, nil
}
