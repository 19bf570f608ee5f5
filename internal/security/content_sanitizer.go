// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はメモ本文をHTMLとして表示するためにサニタイズし、
// XSSなどのリスクからユーザーを保護する。
// bluemondayの許可リストベースのポリシーで安全なタグと属性のみを通過させる。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェース。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	Sanitize(rawHTML string) string
	// RenderContent はメモ本文を表示用HTMLに変換する。改行は<br>になる。
	RenderContent(content string) string
}

type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img
//   - imgのsrc属性: httpsスキームのみ許可
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

var newlineReplacer = strings.NewReplacer("\r\n", "<br>", "\n", "<br>")

// RenderContent はメモ本文の改行を<br>に変換してからサニタイズする。
func (s *contentSanitizer) RenderContent(content string) string {
	if content == "" {
		return ""
	}
	return s.policy.Sanitize(newlineReplacer.Replace(content))
}
