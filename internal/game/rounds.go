package game

import (
	"math/rand"

	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/errors"
)

// BuildRounds partitions a track pool into roundCount rounds of
// optionsPerRound options each.
//
// The pool is shuffled once and sliced into consecutive chunks. Within a
// chunk the first track becomes the correct answer, then the chunk is
// shuffled again so the correct option's position is independent across
// rounds. Round numbers follow chunk order, 0-based.
//
// The function is pure given rng: it never reads hidden state and does not
// retain the input slice.
func BuildRounds(rng *rand.Rand, pool []domain.Track, roundCount, optionsPerRound int) ([]domain.Round, error) {
	if roundCount < 1 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("round count must be positive, got %d", roundCount))
	}
	if optionsPerRound < 2 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("options per round must be at least 2, got %d", optionsPerRound))
	}

	need := roundCount * optionsPerRound
	if len(pool) < need {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("not enough tracks: need %d, have %d", need, len(pool)))
	}

	shuffled := make([]domain.Track, len(pool))
	copy(shuffled, pool)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	rounds := make([]domain.Round, 0, roundCount)
	for i := 0; i < roundCount; i++ {
		chunk := shuffled[i*optionsPerRound : (i+1)*optionsPerRound]
		correct := chunk[0]

		options := make([]domain.TrackOption, 0, len(chunk))
		for _, t := range chunk {
			options = append(options, domain.TrackOption{
				ID:     t.ID,
				Title:  t.Title,
				Artist: t.Artist,
			})
		}
		rng.Shuffle(len(options), func(a, b int) {
			options[a], options[b] = options[b], options[a]
		})

		rounds = append(rounds, domain.Round{
			RoundNumber:    i,
			URL:            correct.URL,
			Options:        options,
			CorrectTrackID: correct.ID,
			Checked:        false,
		})
	}

	return rounds, nil
}
