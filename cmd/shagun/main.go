// Command shagun はイベント記帳サービスのエントリポイント。
// サブコマンド: serve（デフォルト）, worker, migrate, healthcheck
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/shagun/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "shagun: %v\n", err)
		os.Exit(1)
	}
}
