package history

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/turtacn/ChemPredict/internal/domain/reaction"
)

func TestNewRecord(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	cats := map[string]string{
		reaction.ColSubstrateDegree: "Tertiary",
		reaction.ColLeavingGroup:    "Br-",
		reaction.ColNucleophile:     "H2O",
		reaction.ColSolventType:     "Polar Protic",
		reaction.ColStericHindrance: "Low",
	}
	probs := map[reaction.Mechanism]float64{reaction.SN1: 1}

	r := NewRecord(cats, 25, reaction.SN1, probs, "2.x", "forest", true, 3*time.Millisecond, now)

	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.Equal(t, "Tertiary", r.SubstrateDegree)
	assert.Equal(t, "Low", r.StericHindrance)
	assert.Equal(t, 25.0, r.Temperature)
	assert.Equal(t, reaction.SN1, r.Mechanism)
	assert.True(t, r.CacheHit)
	assert.Equal(t, time.UTC, r.CreatedAt.Location())
	assert.True(t, now.Equal(r.CreatedAt))
}

func TestQuery_Normalize(t *testing.T) {
	assert.Equal(t, DefaultLimit, Query{}.Normalize().Limit)
	assert.Equal(t, DefaultLimit, Query{Limit: -3}.Normalize().Limit)
	assert.Equal(t, 7, Query{Limit: 7}.Normalize().Limit)
	assert.Equal(t, MaxLimit, Query{Limit: MaxLimit + 1}.Normalize().Limit)
}

func TestStats_HitRatio(t *testing.T) {
	var nilStats *Stats
	assert.Zero(t, nilStats.HitRatio())
	assert.Zero(t, (&Stats{}).HitRatio())
	assert.InDelta(t, 0.25, (&Stats{Total: 8, CacheHits: 2}).HitRatio(), 1e-12)
}
