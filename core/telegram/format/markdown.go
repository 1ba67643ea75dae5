// Package format escapes user-provided text for Telegram parse modes.
package format

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const mdV2Specials = "_*[]()~`>#+=|{}.!\\-"

var (
	mdV1Re = regexp.MustCompile("([_*`\\[])")
	mdV2Re = regexp.MustCompile("([" + regexp.QuoteMeta(mdV2Specials) + "])")
	// Inside pre and code entities only ` and \ must be escaped.
	mdV2CodeRe = regexp.MustCompile("([`\\\\])")
	// Inside the (...) part of inline links only ) and \ must be escaped.
	mdV2LinkRe = regexp.MustCompile(`([)\\])`)
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
// entityType narrows V2 escaping for "code", "pre" and "text_link" contexts.
func EscapeMarkdown(text string, version int, entityType string) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		switch strings.ToLower(entityType) {
		case "code", "pre":
			return mdV2CodeRe.ReplaceAllString(text, `\$1`), nil
		case "text_link", "custom_emoji":
			return mdV2LinkRe.ReplaceAllString(text, `\$1`), nil
		}
		return mdV2Re.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// V2 escapes text for a MarkdownV2 body.
func V2(text string) string {
	return mdV2Re.ReplaceAllString(text, `\$1`)
}
