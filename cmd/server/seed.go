package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UkralStul/content-service/internal/posts"
	"github.com/UkralStul/content-service/internal/users"
)

const demoPassword = "demo-password"

// seed заполняет хранилище данными для ручной проверки.
func seed(ctx context.Context, us *users.Service, repo *posts.Repository, engine *posts.Engine, log *slog.Logger) error {
	admin, err := us.EnsureAdmin(ctx, "demo-admin", demoPassword)
	if err != nil {
		return fmt.Errorf("seed: failed to create admin: %w", err)
	}
	reader, err := us.Register(ctx, users.RegisterInput{Username: "demo-reader", Password: demoPassword})
	if err != nil {
		return fmt.Errorf("seed: failed to create reader: %w", err)
	}

	// 1. Пост администратора с парой комментариев и лайком.
	post, err := repo.Create(ctx, admin.ID, posts.CreateInput{
		Title:   "Добро пожаловать",
		Content: "Первый пост блога. Ставьте лайки и оставляйте комментарии.",
	})
	if err != nil {
		return fmt.Errorf("seed: failed to create post: %w", err)
	}
	if _, err := engine.AddComment(ctx, post.ID, reader.User.ID, "Отличный пост!"); err != nil {
		return fmt.Errorf("seed: failed to create comment: %w", err)
	}
	if _, err := engine.AddComment(ctx, post.ID, admin.ID, "Спасибо! Рад, что понравилось."); err != nil {
		return fmt.Errorf("seed: failed to create reply: %w", err)
	}
	if _, err := engine.ToggleLike(ctx, post.ID, reader.User.ID); err != nil {
		return fmt.Errorf("seed: failed to like post: %w", err)
	}

	// 2. Пост читателя без взаимодействий.
	second, err := repo.Create(ctx, reader.User.ID, posts.CreateInput{
		Title:   "Заметка читателя",
		Content: "Этот пост можно редактировать от имени demo-reader или demo-admin.",
	})
	if err != nil {
		return fmt.Errorf("seed: failed to create second post: %w", err)
	}

	log.Info("demo data seeded",
		"users", []string{admin.Username, reader.User.Username},
		"password", demoPassword,
		"posts", []string{post.ID, second.ID},
	)
	return nil
}
