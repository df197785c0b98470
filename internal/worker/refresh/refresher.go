// Package refresh はアクセストークンのバックグラウンド更新を提供する。
// 有効期限が近いブラウザセッションを定期的に取得し、並列数を制限しながら更新する。
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/ecarebots/internal/metrics"
	"github.com/hitoshi/ecarebots/internal/model"
)

// SessionLister は更新対象セッションの取得インターフェース。
// repository.SessionRepositoryの部分集合。
type SessionLister interface {
	ListExpiringTokens(ctx context.Context, before time.Time, limit int) ([]*model.Session, error)
}

// SessionRefresher はセッションのトークンを更新する。*auth.Serviceが満たす。
type SessionRefresher interface {
	Refresh(ctx context.Context, session *model.Session) error
}

// Config はRefresherの設定。
type Config struct {
	Margin         time.Duration // 有効期限のこの時間前から更新対象にする
	BatchSize      int           // 1サイクルで更新する最大件数
	MaxConcurrency int
}

// Refresher はトークン更新のスケジューリングと並列制御を行う。
type Refresher struct {
	sessions SessionLister
	service  SessionRefresher
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	config   Config
	now      func() time.Time
}

// NewRefresher はRefresherを生成する。
// 設定値が0以下の場合はデフォルト値（マージン5分、100件、並列数4）を使用する。
func NewRefresher(
	sessions SessionLister,
	service SessionRefresher,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	config Config,
) *Refresher {
	if config.Margin <= 0 {
		config.Margin = 5 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Refresher{
		sessions: sessions,
		service:  service,
		logger:   logger,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
}

// Start はintervalごとにRunOnceを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("トークン更新スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("margin", r.config.Margin),
	)

	// 起動直後に1回実行
	r.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("トークン更新スケジューラを停止しました")
			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Refresher) runLogged(ctx context.Context) {
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("トークン更新サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は有効期限がマージン内のセッションを取得し、並列で更新する。
// 個々の更新失敗はログとメトリクスに記録し、サイクル全体は失敗させない。
func (r *Refresher) RunOnce(ctx context.Context) error {
	start := r.now()

	sessions, err := r.sessions.ListExpiringTokens(ctx, start.Add(r.config.Margin), r.config.BatchSize)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		r.logger.Debug("更新対象のセッションはありません")
		return nil
	}

	sem := make(chan struct{}, r.config.MaxConcurrency)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)

	for _, session := range sessions {
		wg.Add(1)
		sem <- struct{}{}

		go func(s *model.Session) {
			defer wg.Done()
			defer func() { <-sem }()

			err := r.service.Refresh(ctx, s)
			r.metrics.RecordTokenRefresh(err == nil)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				r.logger.Warn("トークンの更新に失敗しました",
					slog.String("user_id", s.UserID),
					slog.String("error", err.Error()),
				)
			}
		}(session)
	}

	wg.Wait()

	r.logger.Info("トークン更新サイクルが完了しました",
		slog.Int("session_count", len(sessions)),
		slog.Int("failed_count", failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
