// Package play produces play results for game sessions. The economy treats
// them as opaque input; the random generator is what the CLI uses.
package play

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/and161185/arcadia/internal/model"
)

// Generator produces the result of one play-through.
type Generator interface {
	Play(ctx context.Context, difficulty int) (model.PlayResult, error)
}

var flavorEvents = []string{
	"Game started!",
	"Power-up collected!",
	"Bonus points earned!",
	"Near miss!",
	"Perfect combo!",
}

const finalEvent = "Game over!"

// RandomGenerator simulates a play-through. Harder games score higher,
// last longer and are completed less often.
type RandomGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomGenerator seeds the generator. The same seeds give the same sequence.
func NewRandomGenerator(seed1, seed2 uint64) *RandomGenerator {
	return &RandomGenerator{rnd: rand.New(rand.NewPCG(seed1, seed2))}
}

// Play implements Generator.
func (g *RandomGenerator) Play(ctx context.Context, difficulty int) (model.PlayResult, error) {
	if err := ctx.Err(); err != nil {
		return model.PlayResult{}, err
	}
	difficulty = min(max(difficulty, 1), 5)

	g.mu.Lock()
	defer g.mu.Unlock()

	base := 100 + g.rnd.Int64N(901)
	score := int64(float64(base) * (1 + float64(difficulty)*0.5))

	lo, hi := int64(10+difficulty*5), int64(30+difficulty*10)
	duration := lo + g.rnd.Int64N(hi-lo+1)

	chance := max(0.3, 0.9-float64(difficulty)*0.15)
	completed := g.rnd.Float64() < chance

	picked := make([]string, len(flavorEvents))
	copy(picked, flavorEvents)
	g.rnd.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	events := append(picked[:3:3], finalEvent)

	return model.PlayResult{
		Score:           score,
		DurationSeconds: duration,
		Completed:       completed,
		Events:          events,
	}, nil
}

// Fixed always returns the same result. Useful for scripted runs.
type Fixed model.PlayResult

// Play implements Generator.
func (f Fixed) Play(ctx context.Context, _ int) (model.PlayResult, error) {
	if err := ctx.Err(); err != nil {
		return model.PlayResult{}, err
	}
	return model.PlayResult(f), nil
}
