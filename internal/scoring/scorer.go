package scoring

import (
	"fmt"
	"math"

	"github.com/ascholar/testing-service/internal/models"
)

// Scorer computes the final score for a finished attempt from its recorded
// answers. Implementations must be deterministic: the same answer set always
// yields the same score.
type Scorer interface {
	Score(answers []*models.TestAnswer) (float64, error)
}

// binaryScorer grades each answer as correct or incorrect and reports the
// percentage of correct answers, rounded half-up to two decimal places.
type binaryScorer struct{}

func NewBinaryScorer() Scorer {
	return &binaryScorer{}
}

func (s *binaryScorer) Score(answers []*models.TestAnswer) (float64, error) {
	if len(answers) == 0 {
		return 0, nil
	}

	correct := 0
	for _, answer := range answers {
		if answer == nil {
			return 0, fmt.Errorf("nil answer in result set")
		}
		if answer.IsCorrectAnswer() {
			correct++
		}
	}

	score := float64(correct) / float64(len(answers)) * 100
	return roundHalfUp(score, 2), nil
}

// roundHalfUp rounds v to the given number of decimal places, with ties
// away from zero (0.005 becomes 0.01).
func roundHalfUp(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Floor(v*shift+0.5) / shift
}
