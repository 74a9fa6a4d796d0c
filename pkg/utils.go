package pkg

import (
	"fmt"
	"strings"
	"time"
)

// NormalizeCurrency приводит код валюты к верхнему регистру
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// NormalizeEmail приводит email к нижнему регистру без пробелов по краям
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaskAccountNumber оставляет видимыми только последние четыре цифры
func MaskAccountNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

// FormatDuration форматирует duration в удобочитаемый формат
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.2fm", d.Minutes())
	}
	return fmt.Sprintf("%.2fh", d.Hours())
}

// FormatRate форматирует скорость обработки
func FormatRate(messagesProcessed int64, duration time.Duration) string {
	if duration.Seconds() == 0 {
		return "0 msg/s"
	}
	rate := float64(messagesProcessed) / duration.Seconds()
	return fmt.Sprintf("%.2f msg/s", rate)
}
