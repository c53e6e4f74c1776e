// Package session はサーバー側ストアを持たない署名付きセッショントークンを扱います。
//
// トークン形式: base64url(JSON(payload)) + "." + base64url(HMAC-SHA256(secret, JSON(payload)))
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
)

const tokenSeparator = "."

// Strict にして末尾の余剰ビットが異なる別表記を受け付けない
var encoding = base64.RawURLEncoding.Strict()

// Payload はトークンに埋め込まれる唯一のデータです。
type Payload struct {
	Authenticated bool  `json:"authenticated"`
	ExpiresAt     int64 `json:"expiresAt"` // Unix 秒
}

// encodeToken は payload を署名してトークン文字列にします。
func encodeToken(secret []byte, payload Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return encoding.EncodeToString(body) + tokenSeparator + encoding.EncodeToString(sign(secret, body)), nil
}

// decodeToken は署名を検証してから payload を取り出します。
// 失敗理由は区別せず false だけを返します。
func decodeToken(secret []byte, token string) (Payload, bool) {
	parts := strings.Split(token, tokenSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Payload{}, false
	}

	body, err := encoding.DecodeString(parts[0])
	if err != nil {
		return Payload{}, false
	}
	sig, err := encoding.DecodeString(parts[1])
	if err != nil {
		return Payload{}, false
	}

	// 署名が一致するまで payload の中身は一切信用しない
	if !hmac.Equal(sig, sign(secret, body)) {
		return Payload{}, false
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Payload{}, false
	}
	return payload, true
}

func sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
