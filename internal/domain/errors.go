package domain

import "errors"

var (
	// ErrKeyNotFound は指定された鍵が存在しない場合のエラー。
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyInactive は鍵が無効化・失効済みの場合のエラー。
	ErrKeyInactive = errors.New("key is inactive or revoked")

	// ErrKeyExpired は鍵の有効期限が切れている場合のエラー。
	ErrKeyExpired = errors.New("key is expired")

	// ErrKeyConflict はローテーションのCAS更新が競合した場合のエラー。
	ErrKeyConflict = errors.New("key was modified concurrently")

	// ErrCodeNotFound は指定されたコードが存在しない場合のエラー。
	ErrCodeNotFound = errors.New("code not found")

	// ErrCodeRevoked はコードが失効済みの場合のエラー。
	ErrCodeRevoked = errors.New("code has been revoked")

	// ErrInvalidProjectID はプロジェクトIDの形式が不正な場合のエラー。
	ErrInvalidProjectID = errors.New("invalid project ID")

	// ErrInvalidInput は入力値が不正な場合のエラー。
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidToken はワイヤトークンの形式が不正な場合のエラー。
	ErrInvalidToken = errors.New("invalid code format")

	// ErrSignatureMismatch は署名検証に失敗した場合のエラー。
	ErrSignatureMismatch = errors.New("invalid signature")

	// ErrDecryptFailed は復号（認証タグ検証を含む）に失敗した場合のエラー。
	ErrDecryptFailed = errors.New("decryption failed")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
