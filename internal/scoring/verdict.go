package scoring

import "github.com/spboyer/sqleval/internal/models"

// Compare scores a predicted execution against the reference execution.
//
// Without a reference the turn is not comparable. With one, the sets are
// compared only when both executions succeeded; any other combination,
// including a prediction that never ran, is a mismatch.
func Compare(pred, gold *models.Outcome, referenceAttempted, orderInsensitive bool) models.Verdict {
	v := models.Verdict{
		PredElapsedMs: elapsed(pred),
		GoldElapsedMs: elapsed(gold),
	}
	if v.PredElapsedMs != nil && v.GoldElapsedMs != nil {
		d := *v.PredElapsedMs - *v.GoldElapsedMs
		v.DeltaMs = &d
	}

	switch {
	case !referenceAttempted:
		v.Status = models.VerdictNotComparable
	case pred.Succeeded() && gold.Succeeded() && Equal(pred.Results, gold.Results, orderInsensitive):
		v.Status = models.VerdictMatch
	default:
		v.Status = models.VerdictMismatch
	}
	return v
}

func elapsed(o *models.Outcome) *float64 {
	ms, ok := o.Elapsed()
	if !ok {
		return nil
	}
	return &ms
}
