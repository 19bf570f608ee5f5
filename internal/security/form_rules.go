package security

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/hitoshi/memoman/internal/model"
)

// titlePattern はタイトルに使用できる文字（Unicodeの単語構成文字、空白、基本的な句読点）。
var titlePattern = regexp.MustCompile(`^[\p{L}\p{N}\p{M}_\s.,!?-]+$`)

// dangerousTags はメモ本文に含めることを禁止するタグ。
var dangerousTags = map[string]struct{}{
	"script": {},
	"iframe": {},
	"object": {},
	"embed":  {},
	"form":   {},
	"input":  {},
	"button": {},
}

// ValidateTitleChars はタイトルに使用できない文字が含まれていないか検証する。
// 空文字列は長さ検証に任せるためここでは許可する。
func ValidateTitleChars(title string) error {
	if title == "" || titlePattern.MatchString(title) {
		return nil
	}
	return &model.ValidationError{Field: "title", Reason: "contains invalid characters"}
}

// FindDangerousTag は本文中の最初の危険なタグ名を返す。見つからなければ空文字列。
func FindDangerousTag(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOFを含め、これ以上トークンがない
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if _, ok := dangerousTags[string(name)]; ok {
				return string(name)
			}
		}
	}
}

// ValidateContentTags は本文に危険なタグが含まれていないか検証する。
func ValidateContentTags(content string) error {
	if tag := FindDangerousTag(content); tag != "" {
		return &model.ValidationError{Field: "content", Reason: "contains dangerous HTML tag <" + tag + ">"}
	}
	return nil
}
