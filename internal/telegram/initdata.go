// Package telegram validates the initData string a Telegram Mini App passes
// to its backend.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingBotToken = errors.New("bot token is not configured")
	ErrMissingInitData = errors.New("init data is missing")
	ErrMissingHash     = errors.New("init data has no hash")
	ErrInvalidHash     = errors.New("init data hash mismatch")
	ErrExpired         = errors.New("init data is expired")
	ErrNoUser          = errors.New("init data has no user")
)

type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

type InitData struct {
	User       User
	AuthDate   time.Time
	QueryID    string
	StartParam string
	Hash       string
}

// ValidateInitData checks the initData signature against botToken and that
// auth_date is no older than maxAge. A zero maxAge disables the age check.
// Without a bot token every request is rejected.
func ValidateInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	if botToken == "" {
		return nil, ErrMissingBotToken
	}
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingInitData
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrMissingHash
	}

	expected := Sign(values, botToken)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hash))) {
		return nil, ErrInvalidHash
	}

	authUnix, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse auth_date: %w", err)
	}
	authDate := time.Unix(authUnix, 0).UTC()
	if maxAge > 0 && now.Sub(authDate) > maxAge {
		return nil, ErrExpired
	}

	data := &InitData{
		AuthDate:   authDate,
		QueryID:    values.Get("query_id"),
		StartParam: values.Get("start_param"),
		Hash:       hash,
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, ErrNoUser
	}
	if err := json.Unmarshal([]byte(userJSON), &data.User); err != nil {
		return nil, fmt.Errorf("parse user: %w", err)
	}
	if data.User.ID == 0 {
		return nil, ErrNoUser
	}
	return data, nil
}

// Sign computes the hex hash Telegram would attach to values. The hash key
// itself is ignored.
func Sign(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
