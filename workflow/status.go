package workflow

import "github.com/ariebrainware/educe-api/model"

// DeriveStatus computes the status a child must have given its requests and
// game results, together with the psychologist the child is assigned to.
// At most one request is active at a time and a completed request is
// terminal, so the projection does not depend on row ordering.
func DeriveStatus(requests []model.AssessmentRequest, results []model.GameResult) (model.ChildStatus, *string) {
	recorded := make(map[string]bool, len(results))
	for _, r := range results {
		recorded[r.RequestID] = true
	}

	for _, req := range requests {
		if !req.Status.Active() {
			continue
		}
		psychologistID := req.PsychologistID
		if req.Status == model.RequestPending {
			return model.ChildPending, &psychologistID
		}
		if recorded[req.ID] {
			return model.ChildGamesCompleted, &psychologistID
		}
		return model.ChildAccepted, &psychologistID
	}

	for _, req := range requests {
		if req.Status == model.RequestCompleted {
			psychologistID := req.PsychologistID
			return model.ChildCompleted, &psychologistID
		}
	}
	return model.ChildAvailable, nil
}

// NormalizeStatus maps any stored value onto a status a child may hold.
// Rejected and unknown values become available.
func NormalizeStatus(s model.ChildStatus) model.ChildStatus {
	if s == model.ChildRejected || !s.Valid() {
		return model.ChildAvailable
	}
	return s
}
