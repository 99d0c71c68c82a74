package scoring

import (
	"testing"

	"github.com/ascholar/testing-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeAnswers(results ...bool) []*models.TestAnswer {
	answers := make([]*models.TestAnswer, 0, len(results))
	for i, correct := range results {
		c := correct
		answers = append(answers, &models.TestAnswer{
			QuestionID: uint(i + 1),
			Answer:     "x",
			IsCorrect:  &c,
		})
	}
	return answers
}

func TestBinaryScorerAllCorrect(t *testing.T) {
	scorer := NewBinaryScorer()

	score, err := scorer.Score(makeAnswers(true, true, true, true))
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)
}

func TestBinaryScorerPartialCredit(t *testing.T) {
	scorer := NewBinaryScorer()

	score, err := scorer.Score(makeAnswers(true, true, true, false, false))
	require.NoError(t, err)
	assert.Equal(t, 60.0, score)
}

func TestBinaryScorerRoundsHalfUp(t *testing.T) {
	scorer := NewBinaryScorer()

	// 7/9 = 77.777... rounds to 77.78
	score, err := scorer.Score(makeAnswers(true, true, true, true, true, true, true, false, false))
	require.NoError(t, err)
	assert.Equal(t, 77.78, score)

	// 1/3 = 33.333... rounds to 33.33
	score, err = scorer.Score(makeAnswers(true, false, false))
	require.NoError(t, err)
	assert.Equal(t, 33.33, score)
}

func TestBinaryScorerEmptyAnswers(t *testing.T) {
	scorer := NewBinaryScorer()

	score, err := scorer.Score(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestBinaryScorerUngradedCountsAsIncorrect(t *testing.T) {
	scorer := NewBinaryScorer()

	answers := makeAnswers(true, true)
	answers = append(answers, &models.TestAnswer{QuestionID: 3, Answer: "x"})

	score, err := scorer.Score(answers)
	require.NoError(t, err)
	assert.Equal(t, 66.67, score)
}

func TestBinaryScorerDeterministic(t *testing.T) {
	scorer := NewBinaryScorer()
	answers := makeAnswers(true, false, true, true, false, true, false)

	first, err := scorer.Score(answers)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := scorer.Score(answers)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
