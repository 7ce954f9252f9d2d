package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/yunzhijiao/bridge/internal/clock"
	"github.com/yunzhijiao/bridge/internal/notification/domain"
)

type service struct {
	repo  domain.Repository
	clock clock.Clock
}

func NewService(repo domain.Repository, clk clock.Clock) domain.Service {
	return &service{repo: repo, clock: clk}
}

func (s *service) List(ctx context.Context, req domain.ListRequest) ([]domain.Notification, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.List(ctx, req)
}

func (s *service) UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	return s.repo.UnreadCount(ctx, userID)
}

func (s *service) MarkRead(ctx context.Context, userID snowflake.ID, ids []string) (int64, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	return s.repo.MarkRead(ctx, userID, ids, s.clock.Now())
}

func (s *service) MarkAllRead(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	return s.repo.MarkAllRead(ctx, userID, s.clock.Now())
}
