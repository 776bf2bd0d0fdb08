// Package admission はエージェントへのトレント追加とその確認を提供する。
//
// エージェントの追加APIは失敗時でも "Ok." を、成功時でも "Fails." を
// 返すことがあり、応答文字列では成否を判定できない。そのため投入後に
// 状態問い合わせをポーリングし、エージェントがトレントを認識した
// 時点で確認完了とする。
package admission

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/seedman/internal/agent"
	"github.com/hitoshi/seedman/internal/model"
)

// State は追加確認の状態を表す。
type State int

const (
	// StateSubmitted は投入済みで確認待ちの状態。
	StateSubmitted State = iota + 1
	// StateConfirmed はエージェントによる取り込みが確認された状態。
	StateConfirmed
	// StateTimedOut は期限内に確認できなかった状態。
	// エージェント側の追加は取り消されないため、遅れて完了する可能性がある。
	StateTimedOut
)

// String はfmt.Stringerインターフェースを実装する。
func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// AgentClient は確認に必要なエージェント操作のインターフェース。
type AgentClient interface {
	SubmitAdd(ctx context.Context, metaBytes []byte, name string) (string, error)
	QueryStatus(ctx context.Context, hashes []string) ([]agent.TorrentStatus, error)
}

// defaultPollInterval は状態問い合わせの間隔。
const defaultPollInterval = 1 * time.Second

// Verifier はトレント追加の投入と確認を行う。
type Verifier struct {
	agent        AgentClient
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewVerifier はVerifierの新しいインスタンスを生成する。
func NewVerifier(agentClient AgentClient, logger *slog.Logger) *Verifier {
	return &Verifier{
		agent:        agentClient,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// Admit はトレントをエージェントに投入し、取り込みを確認する。
// 空のメタデータまたは空のハッシュは入力検証エラーとして即座に拒否される。
// 投入応答は信頼せず、状態問い合わせで確認が取れるまでポーリングする。
// 期限内に確認できなかった場合はタイムアウトエラーを返す。
func (v *Verifier) Admit(ctx context.Context, metaBytes []byte, infoHash, name string, timeout time.Duration) (State, error) {
	if len(metaBytes) == 0 {
		return 0, &model.ValidationError{Reason: "トレントメタデータが空です"}
	}
	if infoHash == "" {
		return 0, &model.ValidationError{Reason: "info-hashが空です"}
	}

	ack, err := v.agent.SubmitAdd(ctx, metaBytes, name)
	if err != nil {
		return 0, err
	}

	// 応答文字列は成否の根拠にならないため、記録のみ
	v.logger.Debug("トレントを投入しました",
		slog.String("info_hash", infoHash),
		slog.String("ack", ack),
	)

	state := StateSubmitted
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := v.agent.QueryStatus(ctx, []string{infoHash})
		if err != nil {
			// 確認中の一時的な問い合わせ失敗では打ち切らず、期限まで継続する
			v.logger.Warn("追加確認の問い合わせに失敗しました",
				slog.String("info_hash", infoHash),
				slog.String("error", err.Error()),
			)
		} else if len(statuses) > 0 {
			state = StateConfirmed
			v.logger.Info("トレントの追加を確認しました",
				slog.String("info_hash", infoHash),
			)
			return state, nil
		}

		if time.Now().After(deadline) {
			state = StateTimedOut
			return state, &model.TimeoutError{InfoHash: infoHash, Timeout: timeout}
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-ticker.C:
		}
	}
}
