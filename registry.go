package poolsentry

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolsentry/poolsentry/filter"
)

var (
	// ErrEvaluationExists is returned when attempting to record a pool that is already in the registry.
	ErrEvaluationExists = errors.New("evaluation already exists in registry")
	// ErrEvaluationNotFound is returned when attempting to access a pool that is not in the registry.
	ErrEvaluationNotFound = errors.New("evaluation not found in registry")
)

// Verdict bit positions for the packed predicate column.
const (
	verdictLiquidityBit uint8 = 1 << iota
	verdictNoRemovalBit
	verdictVerifiedBit
)

func packVerdict(v filter.Verdict) uint8 {
	var bits uint8
	if v.LiquiditySufficient {
		bits |= verdictLiquidityBit
	}
	if v.NoPriorRemoval {
		bits |= verdictNoRemovalBit
	}
	if v.ContractVerified {
		bits |= verdictVerifiedBit
	}
	return bits
}

func unpackVerdict(bits uint8) filter.Verdict {
	return filter.Verdict{
		LiquiditySufficient: bits&verdictLiquidityBit != 0,
		NoPriorRemoval:      bits&verdictNoRemovalBit != 0,
		ContractVerified:    bits&verdictVerifiedBit != 0,
	}
}

// EvaluationView is a snapshot of one recorded evaluation outcome.
type EvaluationView struct {
	Pool    common.Address `json:"pool"`
	Creator common.Address `json:"creator"`
	Block   uint64         `json:"block"`
	Verdict filter.Verdict `json:"verdict"`
	Passed  bool           `json:"passed"`
	SwapTx  common.Hash    `json:"swapTx"`
}

// EvaluationRegistry records every evaluated pool using a data-oriented design.
// The registry is what makes duplicate log deliveries idempotent: a pool
// recorded here is never evaluated or traded again.
type EvaluationRegistry struct {
	pool    []common.Address
	creator []common.Address
	block   []uint64
	verdict []uint8
	swapTx  []common.Hash

	// --- Mapping layer to separate logical pool from physical index ---
	poolToIndex map[common.Address]int // Maps a pool address to its current slice index
}

func NewEvaluationRegistry() *EvaluationRegistry {
	return &EvaluationRegistry{
		poolToIndex: make(map[common.Address]int),
	}
}

// NewEvaluationRegistryFromViews reconstructs an EvaluationRegistry from a slice
// of EvaluationView structs. This is the primary mechanism for restoring the
// registry's state from a snapshot. All slices and maps are pre-allocated to
// their final size.
func NewEvaluationRegistryFromViews(views []EvaluationView) *EvaluationRegistry {
	if len(views) == 0 {
		return NewEvaluationRegistry()
	}

	numEvals := len(views)
	registry := &EvaluationRegistry{
		pool:        make([]common.Address, numEvals),
		creator:     make([]common.Address, numEvals),
		block:       make([]uint64, numEvals),
		verdict:     make([]uint8, numEvals),
		swapTx:      make([]common.Hash, numEvals),
		poolToIndex: make(map[common.Address]int, numEvals),
	}

	for i, view := range views {
		registry.pool[i] = view.Pool
		registry.creator[i] = view.Creator
		registry.block[i] = view.Block
		registry.verdict[i] = packVerdict(view.Verdict)
		registry.swapTx[i] = view.SwapTx
		registry.poolToIndex[view.Pool] = i
	}

	return registry
}

func addEvaluation(
	pool, creator common.Address,
	block uint64,
	verdict filter.Verdict,
	registry *EvaluationRegistry,
) error {
	if _, ok := registry.poolToIndex[pool]; ok {
		return ErrEvaluationExists
	}

	registry.pool = append(registry.pool, pool)
	registry.creator = append(registry.creator, creator)
	registry.block = append(registry.block, block)
	registry.verdict = append(registry.verdict, packVerdict(verdict))
	registry.swapTx = append(registry.swapTx, common.Hash{})

	newIndex := len(registry.pool) - 1
	registry.poolToIndex[pool] = newIndex

	return nil
}

// setSwapTx attaches the submitted swap transaction hash to an existing
// evaluation record.
func setSwapTx(
	pool common.Address,
	txHash common.Hash,
	registry *EvaluationRegistry,
) error {
	index, ok := registry.poolToIndex[pool]
	if !ok {
		return ErrEvaluationNotFound
	}

	registry.swapTx[index] = txHash
	return nil
}

func deleteEvaluation(
	pool common.Address,
	registry *EvaluationRegistry,
) error {
	indexToDelete, ok := registry.poolToIndex[pool]
	if !ok {
		return ErrEvaluationNotFound
	}

	lastIndex := len(registry.pool) - 1
	lastPool := registry.pool[lastIndex]

	if indexToDelete != lastIndex {
		registry.pool[indexToDelete] = lastPool
		registry.creator[indexToDelete] = registry.creator[lastIndex]
		registry.block[indexToDelete] = registry.block[lastIndex]
		registry.verdict[indexToDelete] = registry.verdict[lastIndex]
		registry.swapTx[indexToDelete] = registry.swapTx[lastIndex]
		registry.poolToIndex[lastPool] = indexToDelete
	}

	delete(registry.poolToIndex, pool)

	registry.pool = registry.pool[:lastIndex]
	registry.creator = registry.creator[:lastIndex]
	registry.block = registry.block[:lastIndex]
	registry.verdict = registry.verdict[:lastIndex]
	registry.swapTx = registry.swapTx[:lastIndex]

	return nil
}

func viewRegistry(
	registry *EvaluationRegistry,
) []EvaluationView {
	numEvals := len(registry.pool)
	if numEvals == 0 {
		return nil
	}

	views := make([]EvaluationView, numEvals)
	for i := 0; i < numEvals; i++ {
		verdict := unpackVerdict(registry.verdict[i])
		views[i] = EvaluationView{
			Pool:    registry.pool[i],
			Creator: registry.creator[i],
			Block:   registry.block[i],
			Verdict: verdict,
			Passed:  verdict.Pass(),
			SwapTx:  registry.swapTx[i],
		}
	}
	return views
}

// getEvaluationByPool retrieves a single evaluation's view by pool address.
func getEvaluationByPool(
	pool common.Address,
	registry *EvaluationRegistry,
) (EvaluationView, error) {
	index, ok := registry.poolToIndex[pool]
	if !ok {
		return EvaluationView{}, fmt.Errorf("pool %s: %w", pool.Hex(), ErrEvaluationNotFound)
	}

	verdict := unpackVerdict(registry.verdict[index])
	return EvaluationView{
		Pool:    registry.pool[index],
		Creator: registry.creator[index],
		Block:   registry.block[index],
		Verdict: verdict,
		Passed:  verdict.Pass(),
		SwapTx:  registry.swapTx[index],
	}, nil
}

func hasEvaluation(
	pool common.Address,
	registry *EvaluationRegistry,
) bool {
	_, ok := registry.poolToIndex[pool]
	return ok
}
