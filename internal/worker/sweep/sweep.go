// Package sweep は期限切れのログインリンクとセッションを定期削除するジョブを提供する。
// ストアは参照時に期限切れを判定するため、このジョブは記憶領域の回収のみを担う。
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/linkgate/internal/repository"
)

// SweptRecorder は削除件数を記録するメトリクスのインターフェース。
type SweptRecorder interface {
	RecordSwept(store string, count int)
}

// Target はスイープ対象のストアと、ログ・メトリクス用の名前の組。
type Target struct {
	Name  string
	Store repository.Sweepable
}

// Sweeper は登録されたストアのSweepを順に呼び出すジョブ。
type Sweeper struct {
	targets  []Target
	logger   *slog.Logger
	recorder SweptRecorder
	now      func() time.Time
}

// NewSweeper は新しいSweeperを生成する。recorderはnilでもよい。
func NewSweeper(logger *slog.Logger, recorder SweptRecorder, targets ...Target) *Sweeper {
	return &Sweeper{
		targets:  targets,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Run は全ストアを1回スイープする。
// 1つのストアが失敗しても残りのストアは処理し、失敗をまとめて返す。
func (s *Sweeper) Run(ctx context.Context) error {
	start := time.Now()
	now := s.now()

	var errs []error
	total := 0
	for _, target := range s.targets {
		n, err := target.Store.Sweep(ctx, now)
		if err != nil {
			s.logger.Error("スイープに失敗しました",
				slog.String("store", target.Name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("sweep %s: %w", target.Name, err))
			continue
		}
		if s.recorder != nil {
			s.recorder.RecordSwept(target.Name, n)
		}
		total += n
		s.logger.Debug("スイープ完了",
			slog.String("store", target.Name),
			slog.Int("deleted_count", n),
		)
	}

	s.logger.Info("スイープジョブが完了しました",
		slog.Int("deleted_count", total),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return errors.Join(errs...)
}

// Start は起動直後に1回スイープし、以後intervalごとに繰り返す。
// ctxがキャンセルされるまでブロックする。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("スイープジョブを開始しました",
		slog.Duration("interval", interval),
	)

	if err := s.Run(ctx); err != nil {
		s.logger.Error("スイープサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スイープジョブを停止しました")
			return
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("スイープサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
