package workflow

import (
	"context"
	"testing"

	"github.com/ariebrainware/educe-api/config"
	"github.com/ariebrainware/educe-api/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	parent      = Actor{UserID: 1, Role: model.RoleCustomer}
	otherParent = Actor{UserID: 2, Role: model.RoleCustomer}
	psychUser   = Actor{UserID: 100, Role: model.RolePsychologist}
	otherPsych  = Actor{UserID: 101, Role: model.RolePsychologist}
	admin       = Actor{UserID: 900, Role: model.RoleAdmin}
)

// harness is one Store implementation plus a way to seed profiles into it.
type harness struct {
	store Store
	seed  func(t *testing.T, p model.Psychologist) model.Psychologist
}

func newGormHarness(t *testing.T) harness {
	t.Helper()
	db, err := config.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, model.Migrate(db))
	return harness{
		store: NewGormStore(db),
		seed: func(t *testing.T, p model.Psychologist) model.Psychologist {
			require.NoError(t, db.Create(&p).Error)
			return p
		},
	}
}

func newMemoryHarness(t *testing.T) harness {
	mem := NewMemoryStore()
	return harness{
		store: mem,
		seed: func(t *testing.T, p model.Psychologist) model.Psychologist {
			if p.ID == "" {
				p.ID = model.NewID()
			}
			mem.PutPsychologist(p)
			return p
		},
	}
}

// forEachStore runs fn once per Store implementation with fresh state.
func forEachStore(t *testing.T, fn func(t *testing.T, h harness)) {
	t.Run("gorm", func(t *testing.T) { fn(t, newGormHarness(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryHarness(t)) })
}

func sarah() model.Psychologist {
	return model.Psychologist{
		UserID:               psychUser.UserID,
		Name:                 "Dr. Sarah Johnson",
		Title:                "Child Psychologist",
		Specializations:      []string{"Child Development", "Learning Disabilities"},
		Experience:           "8+ years",
		Rating:               4.8,
		CompletedAssessments: 100,
		Available:            true,
		Approved:             true,
	}
}

func michael() model.Psychologist {
	return model.Psychologist{
		UserID:    otherPsych.UserID,
		Name:      "Dr. Michael Chen",
		Title:     "Educational Psychologist",
		Rating:    4.9,
		Available: true,
		Approved:  true,
	}
}

func aya() ChildInput {
	return ChildInput{
		Name:      "Aya",
		Age:       8,
		Gender:    "female",
		Interests: []string{"drawing", "music"},
		Notes:     "shy at first",
	}
}

func fiveAnswers() []model.Answer {
	return []model.Answer{
		{GameTitle: "Color Preferences", Question: "Which color makes you feel happiest?", Answer: "Blue", Category: "emotional"},
		{GameTitle: "Activity Choices", Question: "What would you like to do on a sunny day?", Answer: "Draw pictures", Category: "interests"},
		{GameTitle: "Problem Solving", Question: "If you have 5 apples and give away 2, how many do you have left?", Answer: "3", Category: "logical"},
		{GameTitle: "Social Situations", Question: "If a friend is sad, what would you do?", Answer: "Give them a hug", Category: "social"},
		{GameTitle: "Learning Styles", Question: "How do you like to learn new things?", Answer: "By looking at pictures", Category: "learning"},
	}
}

func readChild(t *testing.T, s Store, id string) model.Child {
	t.Helper()
	var child model.Child
	require.NoError(t, s.Atomic(context.Background(), func(tx Tx) error {
		var err error
		child, err = tx.Child(id)
		return err
	}))
	return child
}

func readRequests(t *testing.T, s Store, childID string) []model.AssessmentRequest {
	t.Helper()
	var reqs []model.AssessmentRequest
	require.NoError(t, s.Atomic(context.Background(), func(tx Tx) error {
		var err error
		reqs, err = tx.RequestsForChild(childID)
		return err
	}))
	return reqs
}

func readResults(t *testing.T, s Store, childID string) []model.GameResult {
	t.Helper()
	var results []model.GameResult
	require.NoError(t, s.Atomic(context.Background(), func(tx Tx) error {
		var err error
		results, err = tx.GameResultsForChild(childID)
		return err
	}))
	return results
}

func countRequests(reqs []model.AssessmentRequest, status model.RequestStatus) int {
	n := 0
	for _, r := range reqs {
		if r.Status == status {
			n++
		}
	}
	return n
}

// requireProjected checks that the cached status equals the derived one.
func requireProjected(t *testing.T, s Store, childID string, want model.ChildStatus) {
	t.Helper()
	child := readChild(t, s, childID)
	require.Equal(t, want, child.Status)
	require.True(t, child.Status.Valid())
	derived, psychologistID := DeriveStatus(readRequests(t, s, childID), readResults(t, s, childID))
	require.Equal(t, child.Status, derived)
	require.True(t, samePsychologist(child.PsychologistID, psychologistID))
}
