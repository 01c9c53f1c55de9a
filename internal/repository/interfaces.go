// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/shagun/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateName は表示名を更新する。
	UpdateName(ctx context.Context, id, name string) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error

	// MarkEmailVerified はメールアドレスを確認済みにする。
	MarkEmailVerified(ctx context.Context, id string) error

	// RevokeTokens はtokens_valid_afterをatに進め、それ以前に発行されたトークンを失効させる。
	RevokeTokens(ctx context.Context, id string, at time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、events、contributionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// EventRepository はイベントデータの永続化インターフェース。
type EventRepository interface {
	// Create はイベントを作成する。
	Create(ctx context.Context, event *model.Event) error

	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// ListByOwner は指定ユーザーが所有するイベントを作成日時の降順で返す。
	ListByOwner(ctx context.Context, ownerUID string) ([]*model.Event, error)

	// Update は許可されたフィールドとupdated_atを書き換える。
	// owner_uidとcreated_atは更新しない。対象がなければErrNotFoundを返す。
	Update(ctx context.Context, event *model.Event) error

	// Delete は指定IDのイベントを削除する。寄付はCASCADE削除される。
	// 対象がなければErrNotFoundを返す。
	Delete(ctx context.Context, id, ownerUID string) error
}

// ContributionRepository は寄付データの永続化インターフェース。
// 寄付は追記のみで、更新・削除の操作は持たない。
type ContributionRepository interface {
	// Create は寄付を作成する。イベントが存在しない場合はErrNotFoundを返す。
	Create(ctx context.Context, contribution *model.Contribution) error

	// ListByEvent はイベントの寄付を作成日時の昇順で返す。
	ListByEvent(ctx context.Context, eventID string) ([]*model.Contribution, error)

	// ListAmounts はイベントの寄付金額だけを文字列で返す。
	// 金額がNULLの寄付は空文字列になる。
	ListAmounts(ctx context.Context, eventID string) ([]string, error)
}
