package app

import (
	"fmt"
	"strings"
)

// Command はmemomanのサブコマンド。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのHEALTHCHECK用。設定の読み込みを行わない。
	CommandHealthcheck Command = "healthcheck"
	CommandVersion     Command = "version"
)

var commandUsages = []struct {
	cmd   Command
	usage string
}{
	{CommandServe, "APIサーバーを起動する（期限切れセッションの掃除も同一プロセスで行う）"},
	{CommandWorker, "期限切れセッションの掃除のみを行う"},
	{CommandMigrate, "データベースマイグレーションを適用する"},
	{CommandHealthcheck, "ローカルの /health を確認する"},
	{CommandVersion, "バージョンを表示する"},
}

// ParseCommand はos.Args[1:]からサブコマンドを取り出す。
// 引数なしはserve扱い。2つ目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}
	for _, u := range commandUsages {
		if string(u.cmd) == args[0] {
			return u.cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q\n\n%s", args[0], Usage())
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: memoman <command>\n\ncommands:\n")
	for _, u := range commandUsages {
		fmt.Fprintf(&b, "  %-12s %s\n", u.cmd, u.usage)
	}
	return b.String()
}
