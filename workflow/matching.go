package workflow

import (
	"sort"

	"github.com/ariebrainware/educe-api/model"
	"github.com/samber/lo"
)

// RankPsychologists filters and orders profiles the same way the SQL listing
// does: approved only unless approvedOnly is false, then rating desc,
// completed assessments desc, id asc.
func RankPsychologists(profiles []model.Psychologist, approvedOnly bool) []model.Psychologist {
	ranked := lo.Filter(profiles, func(p model.Psychologist, _ int) bool {
		return !approvedOnly || p.Approved
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.CompletedAssessments != b.CompletedAssessments {
			return a.CompletedAssessments > b.CompletedAssessments
		}
		return a.ID < b.ID
	})
	return ranked
}
