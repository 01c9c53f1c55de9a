// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証プロバイダーが管理するアカウントを表す。
// uidの発行と変更はプロバイダーのみが行い、ドメイン側は読み取るだけ。
type User struct {
	ID               string
	Email            string
	Name             string
	PasswordHash     string // OAuthのみのアカウントは空
	EmailVerified    bool
	TokensValidAfter time.Time // これより前に発行されたIDトークンは失効扱い
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はサーバー側で保持するセッションレコードを表す。
// Cookieに載る署名済みトークンのjtiがIDに対応する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
