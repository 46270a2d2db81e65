package services

import "workflow-scheme/backend/pkg/models"

const (
	guardFallbackMessage      = "guard evaluation call failed"
	postActionFallbackMessage = "post action call failed"
)

// settle converts the outcome of a remote evaluator call into a definitive result.
// A transport error, a missing body or a missing verdict all become a failed
// result carrying fallback.
func settle(res *models.ExecuteResult, err error, fallback string) *models.ExecuteResult {
	if err != nil || res == nil || res.Success == nil {
		return models.NewExecuteResult(false, fallback)
	}
	return res
}
