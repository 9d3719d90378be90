// Package gae implements centralized critic postprocessing with
// generalized advantage estimates
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Batch is a batch of training data for one agent. Row i of each
// matrix, and element i of each slice, belong to the same timestep.
type Batch struct {
	Obs     *mat.Dense // Local observations of the agent
	State   *mat.Dense // Global state seen by the centralized critic
	Actions *mat.Dense // Actions taken by the agent

	// OpponentActions holds the actions of each other agent in the team
	OpponentActions []*mat.Dense

	Advantages   []float64 // Standardized GAE(λ) advantages
	ValueTargets []float64 // λ-returns, the regression targets of the critic
	Returns      []float64 // Discounted rewards-to-go
}

// Size returns the number of timesteps in the batch
func (b Batch) Size() int {
	return len(b.Advantages)
}

// Buffer implements a forward view generalized advantage estimate -
// GAE(λ) - buffer following https://arxiv.org/abs/1506.02438. Values
// stored in the buffer are the predictions of the centralized critic,
// so advantages are computed from global state rather than from the
// agent's local observation.
type Buffer struct {
	obsSize      int // Size of local observations
	stateSize    int // Size of global states
	actionSize   int // Number of action dimensions
	opponents    int // Number of other agents
	oppActSize   int // Number of action dimensions of other agents
	maxSize      int // Max buffer size
	currentPos   int // Current position in the buffer
	pathStartIdx int // Position in the buffer where current trajectory starts

	lambda float64 // λ for GAE(λ) calculation
	gamma  float64 // Discount factor ℽ

	obsBuffer   []float64
	stateBuffer []float64
	actBuffer   []float64
	oppBuffer   [][]float64
	advBuffer   []float64
	tgtBuffer   []float64
	rewBuffer   []float64
	retBuffer   []float64
	valBuffer   []float64
}

// New creates and returns a new GAE(λ) buffer holding size timesteps
func New(obsDim, stateDim, actDim, opponents, oppActDim, size int, lambda,
	gamma float64) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("new: size must be positive, have %d", size)
	}
	if obsDim <= 0 || stateDim <= 0 || actDim <= 0 {
		return nil, fmt.Errorf("new: dimensions must be positive")
	}
	if opponents < 0 || (opponents > 0 && oppActDim <= 0) {
		return nil, fmt.Errorf("new: invalid opponent action layout (%d, %d)",
			opponents, oppActDim)
	}
	if lambda < 0 || lambda > 1 || gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("new: λ and ℽ must be in [0, 1]")
	}

	oppBuffer := make([][]float64, opponents)
	for i := range oppBuffer {
		oppBuffer[i] = make([]float64, size*oppActDim)
	}

	return &Buffer{
		obsSize:     obsDim,
		stateSize:   stateDim,
		actionSize:  actDim,
		opponents:   opponents,
		oppActSize:  oppActDim,
		maxSize:     size,
		lambda:      lambda,
		gamma:       gamma,
		obsBuffer:   make([]float64, size*obsDim),
		stateBuffer: make([]float64, size*stateDim),
		actBuffer:   make([]float64, size*actDim),
		oppBuffer:   oppBuffer,
		advBuffer:   make([]float64, size),
		tgtBuffer:   make([]float64, size),
		rewBuffer:   make([]float64, size),
		retBuffer:   make([]float64, size),
		valBuffer:   make([]float64, size),
	}, nil
}

// Store stores a single timestep observation, global state, action,
// opponent actions, reward, and central value to the Buffer.
func (b *Buffer) Store(obs, state, act []float64, opp [][]float64, rew,
	val float64) error {
	const op = "store"
	if b.currentPos >= b.maxSize {
		return &BufferError{Op: op, Err: errFull}
	}
	if len(obs) != b.obsSize {
		return fmt.Errorf("store: illegal obs length \n\twant(%v)\n\thave(%v)",
			b.obsSize, len(obs))
	}
	if len(state) != b.stateSize {
		return fmt.Errorf("store: illegal state length \n\twant(%v)"+
			"\n\thave(%v)", b.stateSize, len(state))
	}
	if len(act) != b.actionSize {
		return fmt.Errorf("store: illegal act length \n\twant(%v)\n\thave(%v)",
			b.actionSize, len(act))
	}
	if len(opp) != b.opponents {
		return fmt.Errorf("store: illegal number of opponent actions "+
			"\n\twant(%v)\n\thave(%v)", b.opponents, len(opp))
	}
	for i := range opp {
		if len(opp[i]) != b.oppActSize {
			return fmt.Errorf("store: illegal opponent %d action length "+
				"\n\twant(%v)\n\thave(%v)", i, b.oppActSize, len(opp[i]))
		}
	}

	pos := b.currentPos
	copy(b.obsBuffer[pos*b.obsSize:(pos+1)*b.obsSize], obs)
	copy(b.stateBuffer[pos*b.stateSize:(pos+1)*b.stateSize], state)
	copy(b.actBuffer[pos*b.actionSize:(pos+1)*b.actionSize], act)
	for i := range opp {
		copy(b.oppBuffer[i][pos*b.oppActSize:(pos+1)*b.oppActSize], opp[i])
	}

	b.rewBuffer[pos] = rew
	b.valBuffer[pos] = val
	b.currentPos++
	return nil
}

// FinishPath computes advantage estimates using GAE(λ), value targets,
// and rewards-to-go for each state of the current trajectory. This
// should be called at the end of a trajectory or when one gets cut off
// by the buffer filling up.
//
// The lastVal argument should be 0 if the trajectory ended because
// the agent reached a terminal state, and otherwise it should be the
// central value estimate of the last state. This allows for
// bootstrapping beyond the episode horizon or buffer cutoff.
func (b *Buffer) FinishPath(lastVal float64) {
	start := b.pathStartIdx
	stop := b.currentPos
	if start == stop {
		return
	}

	adv, targets := Advantages(b.rewBuffer[start:stop],
		b.valBuffer[start:stop], lastVal, b.gamma, b.lambda)
	copy(b.advBuffer[start:stop], adv)
	copy(b.tgtBuffer[start:stop], targets)

	rews := append(append([]float64(nil), b.rewBuffer[start:stop]...),
		lastVal)
	rewsToGo := discountCumSum(mat.NewVecDense(len(rews), rews), b.gamma)
	copy(b.retBuffer[start:stop], rewsToGo[:len(rewsToGo)-1])

	b.pathStartIdx = b.currentPos
}

// Get returns the Batch stored in the buffer and empties the buffer.
// Advantages are first standardized to mean 0 and standard deviation
// 1. The buffer must be full, and the last trajectory is finished with
// a zero bootstrap value if FinishPath was not called for it.
func (b *Buffer) Get() (Batch, error) {
	if b.currentPos != b.maxSize {
		return Batch{}, &BufferError{Op: "get", Err: errNotFull}
	}
	b.FinishPath(0)

	b.currentPos = 0
	b.pathStartIdx = 0

	adv := append([]float64(nil), b.advBuffer...)
	Standardize(adv)

	opp := make([]*mat.Dense, b.opponents)
	for i := range opp {
		opp[i] = mat.NewDense(b.maxSize, b.oppActSize,
			append([]float64(nil), b.oppBuffer[i]...))
	}

	return Batch{
		Obs: mat.NewDense(b.maxSize, b.obsSize,
			append([]float64(nil), b.obsBuffer...)),
		State: mat.NewDense(b.maxSize, b.stateSize,
			append([]float64(nil), b.stateBuffer...)),
		Actions: mat.NewDense(b.maxSize, b.actionSize,
			append([]float64(nil), b.actBuffer...)),
		OpponentActions: opp,
		Advantages:      adv,
		ValueTargets:    append([]float64(nil), b.tgtBuffer...),
		Returns:         append([]float64(nil), b.retBuffer...),
	}, nil
}

// Advantages returns the GAE(λ) advantages of a single trajectory with
// the given rewards and value predictions, bootstrapped with lastVal,
// along with the λ-return value targets advantages + values.
func Advantages(rewards, values []float64, lastVal, gamma,
	lambda float64) (adv, targets []float64) {
	if len(rewards) != len(values) {
		panic(fmt.Sprintf("advantages: %d rewards for %d values",
			len(rewards), len(values)))
	}
	if len(rewards) == 0 {
		return nil, nil
	}

	vals := append(append([]float64(nil), values...), lastVal)
	stateVals := mat.NewVecDense(len(values), vals[:len(values)])
	nextStateVals := mat.NewVecDense(len(values), vals[1:])
	rews := mat.NewVecDense(len(rewards), append([]float64(nil), rewards...))

	// δ = r + ℽv(s') - v(s)
	deltas := mat.NewVecDense(stateVals.Len(), nil)
	deltas.AddScaledVec(rews, gamma, nextStateVals)
	deltas.SubVec(deltas, stateVals)

	adv = discountCumSum(deltas, gamma*lambda)
	targets = make([]float64, len(adv))
	floats.AddTo(targets, adv, values)

	return adv, targets
}

// Standardize shifts and scales x in place to have mean 0 and standard
// deviation 1.
func Standardize(x []float64) {
	if len(x) == 0 {
		return
	}
	mean, std := stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		std = 0
	}
	floats.AddConst(-mean, x)
	floats.Scale(1/(std+1e-8), x)
}

// discountCumSum computes and returns the discounted cumulative sum
// of all elements of a vector. Given a vector v = [x0 x1 x2 ... xN]
// and discount ℽ, this function computes and returns:
//
//	[
//		x0 + ℽ x1 + ℽ^2 x2 + ℽ^3 x3 + ... + ℽ^N xN
//		x1 + ℽ^1 x2 + ℽ^2 x3 + ... + ℽ^(N-1) xN
//		...
//		xN
//	]
func discountCumSum(x *mat.VecDense, discount float64) []float64 {
	cumSums := make([]float64, x.Len())
	running := 0.0
	for i := x.Len() - 1; i >= 0; i-- {
		running = x.AtVec(i) + discount*running
		cumSums[i] = running
	}
	return cumSums
}
