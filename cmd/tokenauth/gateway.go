package main

import (
	"context"
	"fmt"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/revocation"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type gatewayHandle struct {
	gateway     tokenauth.RevocationGateway
	housekeeper *revocation.Housekeeper
	redis       redis.UniversalClient
	ping        func(context.Context) error
	close       func()
}

func openGateway(ctx context.Context, s settings, logger *zap.Logger) (*gatewayHandle, error) {
	switch s.Gateway {
	case gatewayRedis:
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		g := revocation.NewRedis(client, s.RedisPrefix, s.RefreshTTL)
		if err := g.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", s.RedisAddr, err)
		}
		logger.Info("revocation gateway ready", zap.String("gateway", s.Gateway), zap.String("addr", s.RedisAddr))
		return &gatewayHandle{gateway: g, redis: client, ping: g.Ping, close: func() { _ = client.Close() }}, nil

	case gatewaySQLite:
		db, err := revocation.OpenSQLite(ctx, s.DatabaseFile)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", s.DatabaseFile, err)
		}
		logger.Info("revocation gateway ready", zap.String("gateway", s.Gateway), zap.String("file", s.DatabaseFile))
		return &gatewayHandle{
			gateway:     db,
			housekeeper: revocation.NewHousekeeper(db, logger, s.HousekeepingInterval, s.RefreshTTL),
			ping:        db.Ping,
			close:       func() { _ = db.Close() },
		}, nil

	case gatewayMemory:
		m := revocation.NewMemory()
		logger.Warn("in-memory revocation gateway does not survive restarts")
		return &gatewayHandle{
			gateway:     m,
			housekeeper: revocation.NewHousekeeper(m, logger, s.HousekeepingInterval, s.RefreshTTL),
			ping:        func(context.Context) error { return nil },
			close:       func() {},
		}, nil
	}

	return nil, fmt.Errorf("unknown gateway %q", s.Gateway)
}
