package search

import (
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// ProcessRequest validates req against the retrieval limits, applies the
// default limit, and returns the hybrid ratio to use.
func ProcessRequest(req *models.SearchRequest, cfg *config.RetrievalConfig) (float64, error) {
	if err := req.Validate(cfg.DefaultLimit, cfg.MaxLimit); err != nil {
		return 0, err
	}
	if req.HybridRatio != nil {
		return *req.HybridRatio, nil
	}
	return cfg.HybridRatio(), nil
}

// candidateDepth is how many hits each branch fetches. A filter can drop
// candidates, so filtered queries read at least the candidate pool.
func candidateDepth(req *models.SearchRequest, cfg *config.RetrievalConfig) int {
	depth := 2 * req.Limit
	if req.Filter != nil && cfg.CandidatePool > depth {
		depth = cfg.CandidatePool
	}
	return depth
}
