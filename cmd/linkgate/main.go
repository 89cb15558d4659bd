// Command linkgate はメールのログインリンクでセッションを発行する認証サーバー。
//
// サブコマンド:
//
//	serve        APIサーバーを起動する（デフォルト）
//	worker       期限切れのリンクとセッションを定期的に削除する
//	migrate      データベースマイグレーションを適用する
//	healthcheck  ローカルの /health を叩いて終了コードで結果を返す
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/linkgate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "linkgate: %v\n", err)
		os.Exit(1)
	}
}
