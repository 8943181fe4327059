package dataset

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// housingSeed fixes the synthetic sample so every run of the walkthrough
// sees the same table.
const housingSeed = 20240214

// HousingFeatureNames are the feature columns of the housing table, in
// column order. The target is the median house value in $100k units.
var HousingFeatureNames = []string{
	"median_income",
	"house_age",
	"avg_rooms",
	"avg_bedrooms",
	"population",
	"avg_occupancy",
	"latitude",
	"longitude",
}

// LoadHousing returns the housing-price walkthrough table: 1000 rows of
// district-level records with a price target driven mostly by income, with
// location and crowding effects plus noise.
func LoadHousing() *Table {
	return loadHousing(1000)
}

func loadHousing(n int) *Table {
	rng := rand.New(rand.NewSource(housingSeed))

	X := mat.NewDense(n, len(HousingFeatureNames), nil)
	Y := mat.NewVecDense(n, nil)

	for i := 0; i < n; i++ {
		income := clamp(math.Exp(rng.NormFloat64()*0.5+1.2), 0.5, 15) // $10k units
		age := float64(1 + rng.Intn(52))
		rooms := clamp(rng.NormFloat64()*1.2+5.4, 2, 10)
		bedrooms := clamp(rooms*(0.18+rng.Float64()*0.08), 0.5, 4)
		population := float64(200 + rng.Intn(3300))
		occupancy := clamp(rng.NormFloat64()*0.6+3.0, 1, 6)
		latitude := 32.5 + rng.Float64()*9.5
		longitude := -124.3 + rng.Float64()*10.0

		// Coastal districts (west, mid-latitude) carry a premium.
		coastal := math.Exp(-math.Abs(longitude+122)/2) * math.Exp(-math.Abs(latitude-36)/4)

		price := 0.45*income +
			0.35*coastal*income +
			0.02*(rooms-bedrooms) +
			0.004*age -
			0.08*(occupancy-3) +
			rng.NormFloat64()*0.25
		price = clamp(price, 0.15, 5.0)

		X.Set(i, 0, round2(income))
		X.Set(i, 1, age)
		X.Set(i, 2, round2(rooms))
		X.Set(i, 3, round2(bedrooms))
		X.Set(i, 4, population)
		X.Set(i, 5, round2(occupancy))
		X.Set(i, 6, round2(latitude))
		X.Set(i, 7, round2(longitude))
		Y.SetVec(i, round2(price))
	}

	names := append([]string(nil), HousingFeatureNames...)
	return &Table{FeatureNames: names, X: X, Y: Y}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
