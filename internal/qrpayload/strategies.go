package qrpayload

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// URLStrategy accepts links such as https://app/attendance?classId=7&token=ZT9.
type URLStrategy struct{}

func (URLStrategy) Name() Format { return FormatURL }

func (URLStrategy) Match(text string) (Payload, bool) {
	u, err := url.Parse(text)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Payload{}, false
	}
	q := u.Query()
	classID, token := q.Get("classId"), q.Get("token")
	if classID == "" || token == "" {
		return Payload{}, false
	}
	return build(classID, token)
}

// Claims reports whether text is a link carrying both query parameters, even
// when their values are invalid. Such a link is never re-read by a later
// strategy.
func (URLStrategy) Claims(text string) bool {
	u, err := url.Parse(text)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	q := u.Query()
	return q.Get("classId") != "" && q.Get("token") != ""
}

// PrefixStrategy accepts CLASS:<digits>:TOKEN:<alphanumeric> anywhere in the
// text, so ATTENDANCE:CLASS:42:TOKEN:abc123 matches as well.
type PrefixStrategy struct{}

var prefixRe = regexp.MustCompile(`(?i)CLASS:(\d+):TOKEN:([A-Za-z0-9]+)`)

func (PrefixStrategy) Name() Format { return FormatPrefix }

func (PrefixStrategy) Match(text string) (Payload, bool) {
	m := prefixRe.FindStringSubmatch(text)
	if m == nil {
		return Payload{}, false
	}
	return build(m[1], m[2])
}

// LooseStrategy is the last resort for hand-typed or reformatted codes:
// whitespace is removed, then the first digit run after "class" and the first
// alphanumeric run after "token" are taken. A token that precedes the class
// marker ends at that marker.
type LooseStrategy struct{}

func (LooseStrategy) Name() Format { return FormatLoose }

func (LooseStrategy) Match(text string) (Payload, bool) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	ci := indexFold(compact, "class")
	ti := indexFold(compact, "token")
	if ci < 0 || ti < 0 {
		return Payload{}, false
	}

	tokenSpan := compact[ti+len("token"):]
	if ci > ti {
		tokenSpan = compact[ti+len("token") : ci]
	}
	classID := firstRun(compact[ci+len("class"):], isDigit)
	token := firstRun(tokenSpan, isAlnum)
	if classID == "" || token == "" {
		return Payload{}, false
	}
	return build(classID, token)
}

// indexFold is an ASCII case-insensitive strings.Index that keeps byte
// offsets aligned with s.
func indexFold(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

// firstRun returns the first maximal run of bytes in s satisfying keep.
func firstRun(s string, keep func(byte) bool) string {
	start := -1
	for i := 0; i < len(s); i++ {
		if keep(s[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isAlnum(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
