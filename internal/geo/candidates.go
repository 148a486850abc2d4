package geo

import (
	"regexp"
	"strings"
)

var parenRe = regexp.MustCompile(`\([^)]*\)`)

func normalizeAddress(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// CandidateQueries строит упорядоченный список запросов от точного к широкому:
//  1. полный нормализованный адрес;
//  2. часть до первой запятой (отрезаем этаж/подъезд);
//  3. то же без текста в скобках (отрезаем "(역삼동)" и подобное);
//  4. первые четыре токена из (3) — грубый район как последний шанс.
//
// Дубликаты и пустые строки выбрасываются с сохранением порядка.
func CandidateQueries(address string) []string {
	full := normalizeAddress(address)
	if full == "" {
		return nil
	}

	var out []string
	seen := map[string]struct{}{}
	add := func(s string) {
		s = normalizeAddress(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	add(full)

	preComma := full
	if idx := strings.Index(full, ","); idx >= 0 {
		preComma = full[:idx]
	}
	add(preComma)

	noParen := parenRe.ReplaceAllString(preComma, " ")
	add(noParen)

	tokens := strings.Fields(noParen)
	if len(tokens) > 4 {
		tokens = tokens[:4]
	}
	add(strings.Join(tokens, " "))

	return out
}
