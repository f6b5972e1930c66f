// Package router picks the model tier for a diagnose request.
package router

import "github.com/kubilitics/kubilitics-copilot/internal/models"

// Thresholds below which a request is cheap enough for the light tier.
// Both comparisons are strict.
type Thresholds struct {
	MaxLogChars int
	MaxFiles    int
}

// DefaultThresholds route logs under 500 characters with fewer than 3 files to the light tier.
var DefaultThresholds = Thresholds{MaxLogChars: 500, MaxFiles: 3}

// Router maps a tier to a concrete model name.
type Router struct {
	thresholds Thresholds
	lightModel string
	fullModel  string
}

// New creates a router.
func New(t Thresholds, lightModel, fullModel string) *Router {
	return &Router{thresholds: t, lightModel: lightModel, fullModel: fullModel}
}

// ChooseTier returns the light tier only when the log is shorter than
// MaxLogChars characters and there are fewer than MaxFiles files.
func (r *Router) ChooseTier(errorLog string, fileCount int) models.Tier {
	if len([]rune(errorLog)) < r.thresholds.MaxLogChars && fileCount < r.thresholds.MaxFiles {
		return models.TierLight
	}
	return models.TierFull
}

// Model returns the model name serving tier.
func (r *Router) Model(tier models.Tier) string {
	if tier == models.TierLight {
		return r.lightModel
	}
	return r.fullModel
}
