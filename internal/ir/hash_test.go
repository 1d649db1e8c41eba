package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRoutine() Routine {
	return Routine{
		Name:        "two_stage_side",
		Description: "score preload, collect, score again",
		Root: Step{Kind: StepSeries, Children: []Step{
			{Kind: StepRun, Binding: "shooter.set_power", Args: Object{"power": Number(0.8)}},
			{Kind: StepWait, Duration: 500 * time.Millisecond},
			{Kind: StepRace, Children: []Step{
				{Kind: StepWaitUntil, Binding: "drive.past_x", Args: Object{"meters": Number(2.5)}},
				{Kind: StepWait, Duration: 3 * time.Second},
			}},
		}},
	}
}

func TestRoutineHashDeterminism(t *testing.T) {
	h1, err := RoutineHash(sampleRoutine())
	require.NoError(t, err)
	h2, err := RoutineHash(sampleRoutine())
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "RoutineHash must be deterministic")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestRoutineHashChangesWithContent(t *testing.T) {
	base := MustRoutineHash(sampleRoutine())

	renamed := sampleRoutine()
	renamed.Name = "two_stage_amp"

	slower := sampleRoutine()
	slower.Root.Children[1].Duration = time.Second

	retargeted := sampleRoutine()
	retargeted.Root.Children[2].Children[0].Args = Object{"meters": Number(3)}

	assert.NotEqual(t, base, MustRoutineHash(renamed))
	assert.NotEqual(t, base, MustRoutineHash(slower))
	assert.NotEqual(t, base, MustRoutineHash(retargeted))
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainRoutine, data), hashWithDomain("robotcore/other/v1", data))
}
