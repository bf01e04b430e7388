package score

// Slope in degrees.
var Slope = Table{
	Name:       "slope",
	Unit:       "deg",
	Thresholds: []float64{5, 15, 25, 35},
	Scores:     []int{1, 2, 3, 4, 5},
}

// Roughness as elevation standard deviation in meters.
var Roughness = Table{
	Name:       "roughness",
	Unit:       "m",
	Thresholds: []float64{1, 3, 6, 12},
	Scores:     []int{1, 2, 3, 4, 5},
}

// DistWater scores closer water higher.
var DistWater = Table{
	Name:       "dist_water",
	Unit:       "m",
	Thresholds: []float64{50, 100, 250, 500},
	Scores:     []int{5, 4, 3, 2, 1},
}

// DistRoad uses the same breakpoints as DistWater.
var DistRoad = Table{
	Name:       "dist_road",
	Unit:       "m",
	Thresholds: []float64{50, 100, 250, 500},
	Scores:     []int{5, 4, 3, 2, 1},
}

// WorldCover lists ESA WorldCover classes and their scores.
var WorldCover = []Category{
	{Code: 10, Label: "tree cover", Score: 1},
	{Code: 20, Label: "shrubland", Score: 3},
	{Code: 30, Label: "grassland", Score: 3},
	{Code: 40, Label: "cropland", Score: 3},
	{Code: 50, Label: "built-up", Score: 4},
	{Code: 60, Label: "bare / sparse vegetation", Score: 5},
	{Code: 70, Label: "snow and ice", Score: 1},
	{Code: 80, Label: "permanent water bodies", Score: 1},
	{Code: 90, Label: "herbaceous wetland", Score: 2},
	{Code: 95, Label: "mangroves", Score: 2},
	{Code: 100, Label: "moss and lichen", Score: 3},
}

// Tables returns the continuous breakpoint tables in predictor order.
func Tables() []Table {
	return []Table{Slope, Roughness, DistWater, DistRoad}
}

// LandCover returns the WorldCover lookup.
func LandCover() *CategoryLookup {
	lc, err := NewCategoryLookup("land_cover", WorldCover)
	if err != nil {
		panic(err) // static table
	}
	return lc
}
