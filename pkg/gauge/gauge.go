// Package gauge infers a single sheet-metal thickness from a noisy set of
// face-pair distance samples. Samples come from an external CAD geometry
// kernel (perpendicular gaps between mutually parallel planar faces, each
// weighted by the pair's combined area); many of them are incidental gaps
// such as hole depths, so the engine votes by frequency, area dominance,
// and closeness to the thinnest observed gap.
package gauge

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/platemark/platemark/pkg/errors"
)

// Sample is one face-pair measurement: the perpendicular separation of two
// parallel planar faces and the sum of the two faces' areas.
type Sample struct {
	Distance float64 `json:"distance" yaml:"distance"` // mm
	Area     float64 `json:"area" yaml:"area"`         // mm², voting weight
}

// Method identifies the decision rule that selected the estimate.
type Method string

// Decision methods, in rule order. Earlier rules encode stronger priors.
const (
	// MethodAreaDominant selected the cluster with the largest summed area,
	// which sat close enough to the thinnest observed gap to be trusted.
	MethodAreaDominant Method = "area_dominant"
	// MethodMinBelowMode selected the thinnest gap on a thin part whose much
	// larger mode likely reflects an unrelated repeated gap (hole pattern).
	MethodMinBelowMode Method = "min_below_mode"
	// MethodModeStrong selected the mode: frequency and area evidence agree.
	MethodModeStrong Method = "mode_strong"
	// MethodConfidence selected the candidate with the highest blended
	// confidence score.
	MethodConfidence Method = "highest_confidence"
	// MethodNone means no sample fell inside the plausible thickness range.
	MethodNone Method = "none"
)

// Estimate is the engine's verdict for one part.
type Estimate struct {
	Value     float64 `json:"value"`            // mm, meaningful only when Valid
	Valid     bool    `json:"valid"`            // false when no sample was usable
	Count     int     `json:"occurrence_count"` // membership count of the chosen cluster
	Method    Method  `json:"method"`
	Rationale string  `json:"rationale"`
}

// Params holds the voting constants. The defaults are empirically chosen
// and kept for compatibility with prior runs; they are exposed as a config
// file for recalibration, not derived from first principles.
type Params struct {
	MinThickness float64 `yaml:"min_thickness"` // plausible sheet range lower bound, mm
	MaxThickness float64 `yaml:"max_thickness"` // plausible sheet range upper bound, mm

	FrequencyWeight float64 `yaml:"frequency_weight"` // score weight for cluster frequency
	AreaWeight      float64 `yaml:"area_weight"`      // score weight for area dominance
	ClosenessWeight float64 `yaml:"closeness_weight"` // score weight for closeness to thinnest gap

	AreaMinRatio  float64 `yaml:"area_min_ratio"`  // rule 1: area-dominant / min threshold
	ThinLimit     float64 `yaml:"thin_limit"`      // rule 2: "thin part" bound, mm
	ModeMinRatio  float64 `yaml:"mode_min_ratio"`  // rule 2: mode / min threshold
	ModeFrequency float64 `yaml:"mode_frequency"`  // rule 3: minimum mode frequency
	ModeAreaDelta float64 `yaml:"mode_area_delta"` // rule 3: |mode - area-dominant| bound, mm
}

// DefaultParams returns the standard voting constants.
func DefaultParams() Params {
	return Params{
		MinThickness:    0.6,
		MaxThickness:    25.0,
		FrequencyWeight: 0.4,
		AreaWeight:      0.3,
		ClosenessWeight: 0.3,
		AreaMinRatio:    1.4,
		ThinLimit:       1.5,
		ModeMinRatio:    1.5,
		ModeFrequency:   0.4,
		ModeAreaDelta:   0.1,
	}
}

// LoadParams reads voting constants from a YAML file. Fields omitted from
// the file keep their defaults.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, errors.WrapIO("read", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, errors.WrapParse("yaml", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks the constants are internally coherent.
func (p Params) Validate() error {
	if p.MinThickness <= 0 || p.MaxThickness <= p.MinThickness {
		return errors.NewValidationError("thickness range", fmt.Sprintf("[%g, %g]", p.MinThickness, p.MaxThickness), "bounds must satisfy 0 < min < max")
	}
	if p.FrequencyWeight < 0 || p.AreaWeight < 0 || p.ClosenessWeight < 0 {
		return errors.NewValidationError("score weights", nil, "weights must be non-negative")
	}
	return nil
}

// Infer runs the engine with the default constants.
func Infer(samples []Sample) Estimate {
	return DefaultParams().Infer(samples)
}

// cluster accumulates the votes for one rounded distance.
type cluster struct {
	count int
	area  float64
}

// round2 rounds a distance to the 2-decimal clustering grid.
func round2(d float64) float64 {
	return math.Round(d*100) / 100
}

// Infer turns the sample multiset into a single estimate. The result
// depends only on the multiset: aggregation is sums and counts, candidate
// selection iterates in ascending distance order, and every tie resolves
// to the smallest value.
func (p Params) Infer(samples []Sample) Estimate {
	clusters := make(map[float64]*cluster)
	total := 0

	for _, s := range samples {
		if s.Distance < p.MinThickness || s.Distance > p.MaxThickness {
			continue
		}
		r := round2(s.Distance)
		c, ok := clusters[r]
		if !ok {
			c = &cluster{}
			clusters[r] = c
		}
		c.count++
		c.area += s.Area
		total++
	}

	if total == 0 {
		return Estimate{
			Method:    MethodNone,
			Rationale: fmt.Sprintf("no distance in valid range %g-%g mm", p.MinThickness, p.MaxThickness),
		}
	}

	candidates := make([]float64, 0, len(clusters))
	for t := range clusters {
		candidates = append(candidates, t)
	}
	sort.Float64s(candidates)

	minThickness := candidates[0]

	var modeThickness, areaThickness float64
	modeCount := 0
	maxArea := math.Inf(-1)
	for _, t := range candidates {
		c := clusters[t]
		if c.count > modeCount {
			modeCount = c.count
			modeThickness = t
		}
		if c.area > maxArea {
			maxArea = c.area
			areaThickness = t
		}
	}
	modeFrequency := float64(modeCount) / float64(total)

	pick := func(t float64, method Method, rationale string) Estimate {
		return Estimate{
			Value:     t,
			Valid:     true,
			Count:     clusters[t].count,
			Method:    method,
			Rationale: rationale,
		}
	}

	// Rule 1: area-dominant candidate close enough to the thinnest gap.
	if areaThickness/minThickness < p.AreaMinRatio {
		return pick(areaThickness, MethodAreaDominant,
			fmt.Sprintf("area-dominant %.2f mm within %.2fx of thinnest gap %.2f mm", areaThickness, areaThickness/minThickness, minThickness))
	}

	// Rule 2: thin part whose much larger mode is likely a repeated
	// unrelated gap such as a hole pattern.
	if minThickness < p.ThinLimit && modeThickness/minThickness > p.ModeMinRatio {
		return pick(minThickness, MethodMinBelowMode,
			fmt.Sprintf("thin gap %.2f mm kept over distant mode %.2f mm", minThickness, modeThickness))
	}

	// Rule 3: frequency and area evidence agree on the mode.
	if modeFrequency > p.ModeFrequency && math.Abs(modeThickness-areaThickness) < p.ModeAreaDelta {
		return pick(modeThickness, MethodModeStrong,
			fmt.Sprintf("mode %.2f mm with frequency %.2f agrees with area-dominant %.2f mm", modeThickness, modeFrequency, areaThickness))
	}

	// Rule 4: blended confidence score; ties resolve to the smallest value.
	best := candidates[0]
	bestScore := math.Inf(-1)
	for _, t := range candidates {
		c := clusters[t]
		score := p.FrequencyWeight*(float64(c.count)/float64(total)) +
			p.AreaWeight*(c.area/maxArea) +
			p.ClosenessWeight*(1-math.Abs(t-minThickness)/minThickness)
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	return pick(best, MethodConfidence,
		fmt.Sprintf("highest confidence score %.2f at %.2f mm", bestScore, best))
}
