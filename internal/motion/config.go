package motion

import (
	"math"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

// Config is the full tuning surface of the movement detection pipeline.
// Zero values are replaced by defaults in NewPipeline; use DefaultConfig
// and override the fields you care about.
type Config struct {
	// Feature extraction.
	MaxFeatures   int     // keypoints kept per frame, strongest first
	PyramidLevels int     // scale pyramid depth
	ScaleFactor   float64 // downscale ratio between pyramid levels
	FASTThreshold int     // corner contrast threshold
	EdgeThreshold int     // border margin where no keypoints are detected

	// Matching.
	RatioTestEnabled   bool
	RatioTestThreshold float64 // best distance must be < ratio * second-best

	// Homography estimation.
	MinMatches            int     // below this, estimation is skipped entirely
	RANSACReprojThreshold float64 // inlier reprojection error bound, pixels
	RANSACMaxIterations   int
	RANSACConfidence      float64 // early-termination target
	MinInlierRatio        float64 // below this the fit is flagged low-confidence
	Seed                  int64   // RANSAC sampling seed; 0 draws from entropy

	// Scoring. Components saturate at the caps so a single runaway
	// component cannot dominate the 0-100 score.
	Weights        entity.ScoreWeights
	TranslationCap float64 // fraction of frame diagonal
	RotationCap    float64 // radians
	ScaleCap       float64 // absolute scale deviation

	// Classification.
	MovementThreshold float64 // score above this is significant movement

	// Orchestration.
	Workers int // parallel pair evaluations; <=1 means sequential
}

// DefaultConfig returns the tuning the detector ships with. The weight
// split (translation 0.6, rotation 0.25, scale 0.15) deliberately
// down-weights scale: zoom and subject proximity change scale without the
// camera panning, so scale is the weakest movement signal.
func DefaultConfig() Config {
	return Config{
		MaxFeatures:   1000,
		PyramidLevels: 4,
		ScaleFactor:   1.2,
		FASTThreshold: 20,
		EdgeThreshold: 16,

		RatioTestEnabled:   true,
		RatioTestThreshold: 0.8,

		MinMatches:            10,
		RANSACReprojThreshold: 3.0,
		RANSACMaxIterations:   2000,
		RANSACConfidence:      0.995,
		MinInlierRatio:        0.25,

		Weights: entity.ScoreWeights{
			Translation: 0.60,
			Rotation:    0.25,
			Scale:       0.15,
		},
		TranslationCap: 0.01,
		RotationCap:    math.Pi / 18,
		ScaleCap:       0.08,

		MovementThreshold: 50.0,

		Workers: 1,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxFeatures <= 0 {
		c.MaxFeatures = d.MaxFeatures
	}
	if c.PyramidLevels <= 0 {
		c.PyramidLevels = d.PyramidLevels
	}
	if c.ScaleFactor <= 1 {
		c.ScaleFactor = d.ScaleFactor
	}
	if c.FASTThreshold <= 0 {
		c.FASTThreshold = d.FASTThreshold
	}
	if c.EdgeThreshold < minEdgeThreshold {
		c.EdgeThreshold = d.EdgeThreshold
	}
	if c.RatioTestThreshold <= 0 || c.RatioTestThreshold >= 1 {
		c.RatioTestThreshold = d.RatioTestThreshold
	}
	if c.MinMatches < minimalSampleSize {
		c.MinMatches = d.MinMatches
	}
	if c.RANSACReprojThreshold <= 0 {
		c.RANSACReprojThreshold = d.RANSACReprojThreshold
	}
	if c.RANSACMaxIterations <= 0 {
		c.RANSACMaxIterations = d.RANSACMaxIterations
	}
	if c.RANSACConfidence <= 0 || c.RANSACConfidence >= 1 {
		c.RANSACConfidence = d.RANSACConfidence
	}
	if c.MinInlierRatio <= 0 {
		c.MinInlierRatio = d.MinInlierRatio
	}
	if c.Weights.Translation+c.Weights.Rotation+c.Weights.Scale == 0 {
		c.Weights = d.Weights
	}
	if c.TranslationCap <= 0 {
		c.TranslationCap = d.TranslationCap
	}
	if c.RotationCap <= 0 {
		c.RotationCap = d.RotationCap
	}
	if c.ScaleCap <= 0 {
		c.ScaleCap = d.ScaleCap
	}
	if c.MovementThreshold <= 0 {
		c.MovementThreshold = d.MovementThreshold
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
}
