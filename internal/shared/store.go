package shared

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"hotelops/internal/adapters/memory"
	redisad "hotelops/internal/adapters/redis"
	"hotelops/internal/domain"
	mysqlstore "hotelops/internal/storage/mysql"
)

// OpenStore connects the configured document store. The returned close
// func releases its connections.
func OpenStore(ctx context.Context, c Config) (domain.DocumentStore, func(), error) {
	switch c.StoreDriver {
	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil

	case "redis":
		st := redisad.New(c.RedisAddr, c.RedisPass, c.RedisDB, c.RedisPrefix)
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", c.RedisAddr, err)
		}
		log.Info().Str("addr", c.RedisAddr).Msg("redis connection ok")
		return st, func() { _ = st.Close() }, nil

	case "mysql":
		db, err := sql.Open("mysql", c.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("sql.Open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("db.Ping: %w", err)
		}
		st := mysqlstore.New(db, c.MySQLPollInterval)
		if err := st.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Dur("poll", c.MySQLPollInterval).Msg("database connection ok")
		return st, func() { _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", c.StoreDriver)
}
