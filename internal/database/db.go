package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open はPostgreSQLへの接続プールを開く。
// databaseURLは接続URL（例: "postgres://seedman:***@db:5432/seedman?sslmode=disable"）。
// sql.Openは接続を試行しないため、疎通確認は呼び出し側でdb.Ping()を行うこと。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 単一プロセスの取得・観測サイクルが順番に使うだけなので、プールは小さく保つ
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
