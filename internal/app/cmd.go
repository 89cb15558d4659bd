package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は認証APIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れのリンクとセッションを削除するワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// commands はサブコマンドと説明の一覧。Usageの表示順を兼ねる。
var commands = []struct {
	cmd     Command
	summary string
}{
	{CommandServe, "start the authentication API (default)"},
	{CommandWorker, "sweep expired magic links and sessions (postgres only)"},
	{CommandMigrate, "apply database migrations"},
	{CommandHealthcheck, "probe the local /health endpoint"},
}

// LookupCommand はサブコマンド名に対応するCommandを返す。未知の名前ではfalseを返す。
func LookupCommand(name string) (Command, bool) {
	for _, c := range commands {
		if string(c.cmd) == name {
			return c.cmd, true
		}
	}
	return "", false
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := LookupCommand(args[0]); ok {
		return cmd
	}
	return CommandServe
}

// UnknownCommand はサポート外のサブコマンド名を返す。引数が空または既知の場合は空文字列。
func UnknownCommand(args []string) string {
	if len(args) == 0 {
		return ""
	}
	if _, ok := LookupCommand(args[0]); ok {
		return ""
	}
	return args[0]
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: linkgate [command]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.summary)
	}
	return b.String()
}
