package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, sc))
		})
	}
}

func TestRun_SingleDeviceResync(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/single_device_resync.yaml")
	require.NoError(t, err)

	res, err := Run(sc)
	require.NoError(t, err)

	assert.Empty(t, res.Failures)
	assert.Equal(t, 2, res.Dives)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, 2, res.Steps[0].New)
	assert.Equal(t, 0, res.Steps[1].New)
	assert.Equal(t, 0, res.Steps[1].Skipped)
}

func TestRun_CrossDeviceDuplicate(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/cross_device_duplicate.yaml")
	require.NoError(t, err)

	res, err := Run(sc)
	require.NoError(t, err)

	assert.Empty(t, res.Failures)
	assert.Equal(t, 1, res.Dives)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, 1, res.Steps[0].New)
	assert.Equal(t, 1, res.Steps[1].Skipped)
}

func TestRun_CancelMidImport(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/cancel_mid_import.yaml")
	require.NoError(t, err)

	res, err := Run(sc)
	require.NoError(t, err)

	assert.Empty(t, res.Failures)
	assert.Equal(t, 2, res.Dives)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, 2, res.Steps[0].New)
	assert.True(t, res.Steps[0].Cancelled)
	assert.Empty(t, res.Steps[0].Err)
}

func TestRun_ExpectationMismatchIsReported(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/corrupt_frame_recovery.yaml")
	require.NoError(t, err)
	sc.Expect.Dives = 99

	res, err := Run(sc)
	require.NoError(t, err)

	require.NotEmpty(t, res.Failures)
	assert.Contains(t, res.Failures[0], "want 99")
}
