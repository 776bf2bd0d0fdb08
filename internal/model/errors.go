// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// ValidationError は不正な入力による失敗を表す。
// 即座に拒否され、リトライの対象にならない（空のメタデータ、オフセットなしの時刻など）。
type ValidationError struct {
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("入力検証エラー: %s", e.Reason)
}

// TransientError はコラボレータとの通信に起因する一時的な失敗を表す
// （ネットワークエラー、非200レスポンス、想定外のペイロード）。
// 取得・削除サイクルでは該当アイテムのみスキップし、サイクルは継続する。
type TransientError struct {
	Op  string // 失敗した操作名
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s に失敗しました: %v", e.Op, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *TransientError) Unwrap() error {
	return e.Err
}

// TimeoutError は追加確認がポーリング期限内に完了しなかったことを表す。
// 外部エージェント側の追加は取り消されないため、遅れて完了する可能性がある。
type TimeoutError struct {
	InfoHash string
	Timeout  time.Duration
}

// Error はerrorインターフェースを実装する。
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("トレント %s の追加を %v 以内に確認できませんでした", e.InfoHash, e.Timeout)
}

// ConsistencyError は外部エージェントへの効果は成功したのに
// ローカルの永続化が失敗した状態を表す。自動では回復できないため、
// 通常の失敗とは区別して大きくログされる。
type ConsistencyError struct {
	InfoHash string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("トレント %s は外部追加に成功しましたが記録に失敗しました: %v", e.InfoHash, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// FatalError は起動時の回復不能な失敗を表す（エージェントへの認証失敗など）。
// 縮退モードはなく、プロセスを終了させる。
type FatalError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *FatalError) Error() string {
	return fmt.Sprintf("回復不能なエラー: %v", e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *FatalError) Unwrap() error {
	return e.Err
}
