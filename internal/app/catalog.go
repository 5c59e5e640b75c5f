package app

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/arcadia/internal/model"
	"github.com/and161185/arcadia/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// StarterCatalog is installed by SeedCatalog into an empty catalog.
var StarterCatalog = []model.Game{
	{Title: "Pixel Snake", Description: "Classic snake game with retro pixel graphics. Collect dots and grow your snake!", Policy: model.PolicyFree, Difficulty: 1},
	{Title: "Space Invaders Classic", Description: "Defend Earth from waves of alien invaders in this timeless arcade shooter.", Policy: model.PolicyPremium, TokenPrice: 2, Difficulty: 2},
	{Title: "Tetris Challenge", Description: "Stack falling blocks to clear lines in this puzzle classic.", Policy: model.PolicyPremium, TokenPrice: 3, Difficulty: 3},
	{Title: "Pac-Man Adventure", Description: "Navigate mazes, collect dots, and avoid ghosts in this legendary game.", Policy: model.PolicyPremium, TokenPrice: 2, Difficulty: 2},
	{Title: "Breakout Master", Description: "Break bricks with your paddle in this addictive arcade game.", Policy: model.PolicyFree, Difficulty: 1},
	{Title: "Asteroids Shooter", Description: "Survive in the dangerous asteroid field and fight for the high score.", Policy: model.PolicyPremium, TokenPrice: 4, Difficulty: 4},
	{Title: "Frogger Road Cross", Description: "Help the frog cross busy roads and rivers safely.", Policy: model.PolicyFree, Difficulty: 2},
	{Title: "Centipede Hunt", Description: "Shoot the descending centipede before it reaches the bottom.", Policy: model.PolicyPremium, TokenPrice: 3, Difficulty: 3},
}

// SeedCatalog installs StarterCatalog when no active game exists and returns the number created.
func SeedCatalog(ctx context.Context, store repository.Store, now time.Time) (int, error) {
	created := 0
	err := store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		existing, err := store.Games.ListActive(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		for _, tmpl := range StarterCatalog {
			g := tmpl
			id, err := uuid.NewV4()
			if err != nil {
				return err
			}
			g.ID = id
			g.Active = true
			g.CreatedAt = now
			if err := store.Games.Create(ctx, &g); err != nil {
				return fmt.Errorf("create %q: %w", g.Title, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	return created, nil
}
