package service

import (
	"context"

	"residentportal/internal/zalo"
)

// ZaloGateway is the external identity bridge consumed by the auth service.
type ZaloGateway interface {
	ValidateAccessToken(ctx context.Context, accessToken string) (bool, error)
	UserProfile(ctx context.Context, accessToken string) (zalo.Profile, error)
}
