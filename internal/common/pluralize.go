// Package common — pluralize.go содержит форматирование очков и чисел
// для сообщений бота.
package common

import "fmt"

// FormatPoints создаёт строку вида "150 очков".
func FormatPoints(points int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(points), PluralizePoints(points))
}

// FormatPointsDelta создаёт строку вида "+10 очков" или "-5 очков".
// Для нуля знак не ставится.
//
// Примеры:
//
//	FormatPointsDelta(10) → "+10 очков"
//	FormatPointsDelta(-5) → "-5 очков"
//	FormatPointsDelta(0)  → "0 очков"
func FormatPointsDelta(delta int64) string {
	if delta > 0 {
		return fmt.Sprintf("+%d %s", delta, PluralizePoints(delta))
	}
	return fmt.Sprintf("%d %s", delta, PluralizePoints(delta))
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}
