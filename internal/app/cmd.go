package app

import (
	"fmt"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandAcquire は取得サイクルを1回だけ実行することを示す。
	CommandAcquire Command = "acquire"
	// CommandSample は観測サイクルを1回だけ実行することを示す。
	CommandSample Command = "sample"
	// CommandEvict は退避計画の算出と実行を行うことを示す。
	CommandEvict Command = "evict"
	// CommandReport は期間指定の転送量レポートを出力することを示す。
	CommandReport Command = "report-transfer"
	// CommandDaemon は取得・観測サイクルを常駐実行することを示す。
	CommandDaemon Command = "daemon"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドと残りの引数を解析する。
// 引数が空の場合はCommandDaemonを返す。サポート外のコマンドはエラーを返す。
func ParseCommand(args []string) (Command, []string, error) {
	if len(args) == 0 {
		return CommandDaemon, nil, nil
	}

	switch args[0] {
	case "acquire":
		return CommandAcquire, args[1:], nil
	case "sample":
		return CommandSample, args[1:], nil
	case "evict":
		return CommandEvict, args[1:], nil
	case "report-transfer":
		return CommandReport, args[1:], nil
	case "daemon":
		return CommandDaemon, args[1:], nil
	case "migrate":
		return CommandMigrate, args[1:], nil
	case "healthcheck":
		return CommandHealthcheck, args[1:], nil
	default:
		return "", nil, fmt.Errorf(
			"unknown command %q (available: acquire, sample, evict, report-transfer, daemon, migrate, healthcheck)",
			args[0])
	}
}
