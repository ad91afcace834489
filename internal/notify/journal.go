package notify

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"dojibot/pkg/logger"
	"dojibot/pkg/model"
)

const journalSchema = `create table if not exists doji_signals (
	id text primary key,
	symbol text not null,
	timeframe text not null,
	close_time timestamptz not null,
	direction text not null,
	price double precision not null,
	zone_kind text not null,
	zone_low double precision not null,
	zone_high double precision not null,
	zone_strength int not null,
	body_pct double precision not null,
	volume_ratio double precision not null,
	created_at timestamptz not null default now(),
	unique (symbol, timeframe, close_time)
);`

const insertSignal = `insert into doji_signals (
	id, symbol, timeframe, close_time, direction, price,
	zone_kind, zone_low, zone_high, zone_strength, body_pct, volume_ratio
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
on conflict do nothing`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Journal records every emitted signal in Postgres
type Journal struct {
	db   execer
	pool *pgxpool.Pool
}

// NewJournal opens a pool on url and creates the doji_signals table
func NewJournal(ctx context.Context, url string, maxConns int32) (*Journal, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	j := &Journal{db: pool, pool: pool}
	if err := j.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("[JOURNAL] Connected, max %d conns", cfg.MaxConns)
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	_, err := j.db.Exec(ctx, journalSchema)
	return errors.Wrap(err, "migrate doji_signals")
}

func (j *Journal) Name() string { return "journal" }

func (j *Journal) Notify(ctx context.Context, sig model.Signal) error {
	z := sig.ConfluenceZone
	tag, err := j.db.Exec(ctx, insertSignal,
		sig.ID, sig.Symbol, sig.Timeframe.String(), sig.CloseTime.UTC(), string(sig.Direction), sig.Price,
		string(z.Kind), z.Low, z.High, z.Strength, sig.Metrics.BodyPct, sig.Metrics.VolumeRatio)
	if err != nil {
		return errors.Wrapf(err, "journal %s %s", sig.Symbol, sig.Timeframe)
	}
	if tag.RowsAffected() == 0 {
		logger.Debug("[JOURNAL] %s already recorded", sig.Key())
	}
	return nil
}

func (j *Journal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}
