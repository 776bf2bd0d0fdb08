package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/seedman/internal/app"
)

func main() {
	// .envファイルがあれば読み込む。本番環境では環境変数を直接設定する。
	_ = godotenv.Load()

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "seedman: %v\n", err)
		os.Exit(1)
	}
}
