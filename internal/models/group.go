package models

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Group: группа, известная по сохранённым занятиям.
type Group struct {
	Code    string `json:"code" db:"group_code"`
	Entries int    `json:"entries" db:"entries"`
}

var dashReplacer = strings.NewReplacer("‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "−", "-")

// NormalizeGroup приводит код группы к ключу: NFC, единый дефис,
// схлопнутые пробелы, нижний регистр.
func NormalizeGroup(s string) string {
	s = norm.NFC.String(s)
	s = dashReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}
