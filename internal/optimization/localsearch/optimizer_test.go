package localsearch

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/molecule"
	"github.com/copyleftdev/qmdock/internal/optimization"
	"github.com/copyleftdev/qmdock/internal/scoring"
)

var (
	egfrSite = molecule.Coordinates{
		{0.0, 0.0, 0.0},
		{0.2, 0.1, 0.1},
		{-0.1, 0.2, 0.1},
	}
	template = molecule.Coordinates{
		{0.0, 0.0, 0.1},
		{0.2, 0.1, 0.0},
		{-0.1, 0.2, 0.0},
		{0.1, -0.1, 0.2},
		{-0.2, -0.1, 0.1},
	}
)

func newTestOptimizer(t testing.TB, cfg optimization.Config) *Optimizer {
	t.Helper()
	enc, err := scoring.NewEncoder(scoring.DefaultFeatureWidth)
	require.NoError(t, err)
	opt, err := NewOptimizer(scoring.NewEvaluator(enc), cfg, nil)
	require.NoError(t, err)
	return opt
}

func TestNewOptimizer(t *testing.T) {
	tests := []struct {
		name    string
		config  optimization.Config
		want    optimization.Config
		wantErr bool
	}{
		{
			name:   "defaults",
			config: optimization.Config{Seed: 1},
			want:   optimization.Config{Iterations: optimization.DefaultIterations, Sigma: optimization.DefaultSigma, Seed: 1},
		},
		{
			name:   "explicit",
			config: optimization.Config{Iterations: 10, Sigma: 0.1, Seed: 2},
			want:   optimization.Config{Iterations: 10, Sigma: 0.1, Seed: 2},
		},
		{
			name:    "negative sigma",
			config:  optimization.Config{Sigma: -1},
			wantErr: true,
		},
		{
			name:    "negative iterations",
			config:  optimization.Config{Iterations: -3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := scoring.NewEncoder(0)
			require.NoError(t, err)

			opt, err := NewOptimizer(scoring.NewEvaluator(enc), tt.config, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, opt.Config())
			assert.NotNil(t, opt.rng)

			_, energy := opt.Best()
			assert.True(t, math.IsInf(energy, 1), "best energy starts at +Inf")
		})
	}
}

func TestOptimizePathInvariants(t *testing.T) {
	for _, iterations := range []int{1, 2, 5, 10, 25} {
		opt := newTestOptimizer(t, optimization.Config{Seed: 42})

		res, err := opt.Optimize(context.Background(), egfrSite, template, iterations)
		require.NoError(t, err)

		optimization.AssertPathConsistent(t, res, iterations)
		assert.Equal(t, res.Path[0].Energy, res.InitialBindingEnergy)
		assert.Equal(t, res.ConvergenceScore, res.StabilityScore)
		assert.InDelta(t, optimization.ConvergenceScore(res.InitialBindingEnergy, res.FinalBindingEnergy), res.ConvergenceScore, 1e-12)
		assert.LessOrEqual(t, res.FinalBindingEnergy, res.InitialBindingEnergy)
	}
}

func TestOptimizeSingleIterationAcceptsFirstPerturbation(t *testing.T) {
	const seed = 1234
	opt := newTestOptimizer(t, optimization.Config{Seed: seed})

	res, err := opt.Optimize(context.Background(), egfrSite, template, 1)
	require.NoError(t, err)

	expected := template.Perturb(rand.New(rand.NewSource(seed)), optimization.DefaultSigma)
	assert.Equal(t, expected, res.OptimizedCoordinates)
	assert.Zero(t, res.Path[0].Improvement, "first step has no prior best")
	assert.Zero(t, res.ConvergenceScore)
}

func TestOptimizeImprovementIsRelativeToPriorBest(t *testing.T) {
	opt := newTestOptimizer(t, optimization.Config{Seed: 7, Sigma: 0.2})

	res, err := opt.Optimize(context.Background(), egfrSite, template, 20)
	require.NoError(t, err)

	best := math.Inf(1)
	for i, entry := range res.Path {
		if i > 0 {
			assert.InDelta(t, best-entry.Energy, entry.Improvement, 1e-12, "iteration %d", entry.Iteration)
		}
		best = math.Min(best, entry.Energy)
		sum := entry.Electrostatic + entry.VanDerWaals
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestOptimizeDeterministicWithSeed(t *testing.T) {
	a, err := newTestOptimizer(t, optimization.Config{Seed: 99}).Optimize(context.Background(), egfrSite, template, 8)
	require.NoError(t, err)
	b, err := newTestOptimizer(t, optimization.Config{Seed: 99}).Optimize(context.Background(), egfrSite, template, 8)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestOptimizeDoesNotMutateInput(t *testing.T) {
	initial := template.Clone()
	opt := newTestOptimizer(t, optimization.Config{Seed: 3})

	_, err := opt.Optimize(context.Background(), egfrSite, initial, 5)
	require.NoError(t, err)

	assert.Equal(t, template, initial)
}

func TestOptimizeDefaultBudget(t *testing.T) {
	opt := newTestOptimizer(t, optimization.Config{Seed: 5, Iterations: 7})

	res, err := opt.Optimize(context.Background(), egfrSite, template, 0)
	require.NoError(t, err)
	assert.Len(t, res.Path, 7)
	assert.Equal(t, res.Path, opt.History())

	coords, energy := opt.Best()
	assert.Equal(t, res.OptimizedCoordinates, coords)
	assert.Equal(t, res.FinalBindingEnergy, energy)
}

func TestOptimizeEmptyCandidate(t *testing.T) {
	opt := newTestOptimizer(t, optimization.Config{Seed: 5})

	res, err := opt.Optimize(context.Background(), egfrSite, molecule.Coordinates{}, 3)
	require.NoError(t, err)

	optimization.AssertPathConsistent(t, res, 3)
	assert.InDelta(t, -math.Log(scoring.EnergyFloor), res.FinalBindingEnergy, 1e-9)
	assert.Empty(t, res.OptimizedCoordinates)
	assert.Zero(t, res.ConvergenceScore)
}

func TestOptimizeCancel(t *testing.T) {
	opt := newTestOptimizer(t, optimization.Config{Seed: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := opt.Optimize(ctx, egfrSite, template, 100)
	require.Error(t, err, "should return error when context is cancelled")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestStopWithoutRun(t *testing.T) {
	opt := newTestOptimizer(t, optimization.Config{Seed: 5})
	assert.NotPanics(t, opt.Stop)
}

func BenchmarkOptimize(b *testing.B) {
	opt := newTestOptimizer(b, optimization.Config{Seed: 1})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = opt.Optimize(ctx, egfrSite, template, 10)
	}
}
