// Package i18n localizes issue codes for people reading decode failures.
package i18n

import "strings"

// Translator retrieves localized messages for Issue codes.
// data provides optional parameters to embed in the message; a placeholder
// such as {version} is replaced by data["version"].
type Translator interface {
	Message(code string, data map[string]string) string
}

var messages = map[string]map[string]string{
	"en": {
		"schema_invalid":     "invalid version schema for {type}",
		"unknown_version":    "{type} has no version {version} (newest is {max})",
		"envelope_malformed": "malformed version envelope",
		"migration_failed":   "migrating {type} from version {from} failed",
		"invalid_type":       "invalid type",
		"unknown_key":        "unknown key",
		"duplicate_key":      "duplicate key",
		"overflow":           "number out of range",
		"parse_error":        "parse error",
		"truncated":          "input truncated",
		"unsupported":        "not supported",
		"checksum_mismatch":  "checksum mismatch",
	},
	"ja": {
		"schema_invalid":     "{type} のバージョンスキーマが不正です",
		"unknown_version":    "{type} にバージョン {version} はありません (最新は {max})",
		"envelope_malformed": "バージョンエンベロープが不正です",
		"migration_failed":   "{type} のバージョン {from} からの移行に失敗しました",
		"invalid_type":       "型が不正です",
		"unknown_key":        "未知のキーです",
		"duplicate_key":      "キーが重複しています",
		"overflow":           "数値が範囲外です",
		"parse_error":        "解析エラー",
		"truncated":          "打ち切られました",
		"unsupported":        "サポートされていません",
		"checksum_mismatch":  "チェックサムが一致しません",
	},
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	msg, ok := messages[t.lang][code]
	if !ok {
		return code
	}
	if !strings.Contains(msg, "{") {
		return msg
	}
	return expand(msg, data)
}

// expand replaces each {name} in msg with data[name], or "?" when data has
// no such entry. Substituted values are never rescanned.
func expand(msg string, data map[string]string) string {
	var b strings.Builder
	b.Grow(len(msg))
	for {
		i := strings.IndexByte(msg, '{')
		if i < 0 {
			break
		}
		j := strings.IndexByte(msg[i:], '}')
		if j < 0 {
			break
		}
		b.WriteString(msg[:i])
		if v, ok := data[msg[i+1:i+j]]; ok {
			b.WriteString(v)
		} else {
			b.WriteByte('?')
		}
		msg = msg[i+j+1:]
	}
	b.WriteString(msg)
	return b.String()
}

// Languages lists the built-in dictionary languages.
func Languages() []string { return []string{"en", "ja"} }

var currentTranslator Translator = dictTranslator{lang: "en"}

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if _, ok := messages[lang]; !ok {
		lang = "en"
	}
	currentTranslator = dictTranslator{lang: lang}
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		currentTranslator = dictTranslator{lang: "en"}
		return
	}
	currentTranslator = tr
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string { return currentTranslator.Message(code, data) }
