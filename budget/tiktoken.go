package budget

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

// TiktokenEstimator counts tokens exactly with a tiktoken encoding instead
// of the heuristic approximation. The encoding initializes lazily on first
// use (tiktoken may load encoding data then); if initialization fails the
// estimator degrades to the heuristic so budgeting keeps working.
type TiktokenEstimator struct {
	encoding string
	fallback *HeuristicEstimator

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenEstimator creates a tiktoken-backed estimator. An empty
// encoding defaults to cl100k_base.
func NewTiktokenEstimator(encoding string) *TiktokenEstimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenEstimator{
		encoding: encoding,
		fallback: NewHeuristicEstimator(0, 0),
	}
}

func (e *TiktokenEstimator) init() error {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			e.initErr = err
			return
		}
		e.enc = enc
	})
	return e.initErr
}

// EstimateText returns the exact token count under the configured encoding,
// or the heuristic estimate when the encoding is unavailable.
func (e *TiktokenEstimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}
	if err := e.init(); err != nil {
		return e.fallback.EstimateText(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}

// EstimateMemory returns the token count for a memory record including
// metadata and structural overhead.
func (e *TiktokenEstimator) EstimateMemory(m *types.Memory) int {
	return estimateMemoryWith(e, m)
}
