package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

func TestChooseTier(t *testing.T) {
	r := New(DefaultThresholds, "gpt-4o-mini", "gpt-4o")

	tests := []struct {
		name   string
		logLen int
		files  int
		want   models.Tier
	}{
		{"empty request", 0, 0, models.TierLight},
		{"just under both", 499, 2, models.TierLight},
		{"log exactly 500", 500, 0, models.TierFull},
		{"exactly three files", 10, 3, models.TierFull},
		{"long log three files", 600, 3, models.TierFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ChooseTier(strings.Repeat("x", tt.logLen), tt.files))
		})
	}
}

func TestChooseTierCountsCharacters(t *testing.T) {
	r := New(DefaultThresholds, "light", "full")
	// 499 runes but far more than 500 bytes.
	assert.Equal(t, models.TierLight, r.ChooseTier(strings.Repeat("é", 499), 0))
}

func TestChooseTierMonotonic(t *testing.T) {
	r := New(DefaultThresholds, "light", "full")
	for logLen := 0; logLen <= 700; logLen += 50 {
		for files := 0; files <= 5; files++ {
			if r.ChooseTier(strings.Repeat("x", logLen), files) != models.TierFull {
				continue
			}
			assert.Equal(t, models.TierFull, r.ChooseTier(strings.Repeat("x", logLen+50), files))
			assert.Equal(t, models.TierFull, r.ChooseTier(strings.Repeat("x", logLen), files+1))
		}
	}
}

func TestModel(t *testing.T) {
	r := New(DefaultThresholds, "gpt-4o-mini", "gpt-4o")
	assert.Equal(t, "gpt-4o-mini", r.Model(models.TierLight))
	assert.Equal(t, "gpt-4o", r.Model(models.TierFull))
}
