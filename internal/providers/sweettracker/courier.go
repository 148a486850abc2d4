package sweettracker

import (
	"fmt"
	"strconv"
	"strings"
)

// Частые алиасы перевозчиков → числовые коды SweetTracker.
// Таблица расширяется по мере появления новых магазинов.
var courierAliases = map[string]string{
	"EPOST":  "01",
	"우체국":    "01",
	"CJ":     "04",
	"CJGLS":  "04",
	"CJ대한통운": "04",
	"HANJIN": "05",
	"한진":     "05",
	"LOGEN":  "06",
	"로젠":     "06",
	"LOTTE":  "08",
	"롯데":     "08",
	"GSPOSTBOX": "24",
	"CU":        "46",
}

// ResolveCourierCode приводит вход к каноническому 2-значному коду.
// Принимает числовые коды (дополняются нулём слева) и алиасы из таблицы.
// Всё нераспознанное, включая пустую строку, даёт "".
func ResolveCourierCode(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if code, ok := courierAliases[s]; ok {
		return code
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 99 {
		return fmt.Sprintf("%02d", n)
	}
	return ""
}

// ResolveTrackingNumber: трим и отбрасывание пустых значений.
func ResolveTrackingNumber(raw string) string {
	return strings.TrimSpace(raw)
}
