// Package idx はメモIDとして使うULIDを生成・正規化する。
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalid は不正な形式のIDを表す。
var ErrInvalid = errors.New("idx: invalid ulid")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New は現在時刻(UTC)から辞書順にソート可能なIDを生成する。
func New() string {
	return NewAt(time.Now().UTC())
}

// NewAt は指定時刻のIDを生成する。同一ミリ秒内でも単調増加する。
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Parse はIDの形式を検証し、正規化した文字列を返す。
func Parse(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalid
	}

	u, err := ulid.ParseStrict(s)
	if err != nil {
		return "", ErrInvalid
	}
	return u.String(), nil
}
