// Package password は管理者パスワードのハッシュ化と照合を提供します。
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost は Hash で使う bcrypt のコストです。
const DefaultCost = 12

// ErrEmptyPassword は空文字列をハッシュ化しようとした場合のエラーです。
var ErrEmptyPassword = errors.New("password is empty")

// Hash はソルト付きの bcrypt ハッシュ（$2a$<cost>$...）を返します。
// ソルトは毎回ランダムなので、同じ入力でも結果は変わります。
func Hash(password string) (string, error) {
	return HashWithCost(password, DefaultCost)
}

// HashWithCost はコストを指定してハッシュ化します。
func HashWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify はハッシュに埋め込まれたソルト・コストで再計算して照合します。
// 不正な形式のハッシュも含め、一致しなければ false を返します。
func Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
