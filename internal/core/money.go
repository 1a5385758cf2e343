// Package core provides the KIPTrack domain types and rules.
//
// This file contains rupiah formatting and the Indonesian number-to-words
// (terbilang) conversion printed on reports.
package core

import (
	"strconv"
	"strings"
)

var satuan = [...]string{
	"", "satu", "dua", "tiga", "empat", "lima",
	"enam", "tujuh", "delapan", "sembilan", "sepuluh", "sebelas",
}

// Terbilang spells n in Indonesian words.
//
// Examples:
//
//	Terbilang(0)       -> "nol"
//	Terbilang(11)      -> "sebelas"
//	Terbilang(1500000) -> "satu juta lima ratus ribu"
//	Terbilang(-1000)   -> "minus seribu"
func Terbilang(n int64) string {
	if n == 0 {
		return "nol"
	}
	if n < 0 {
		// uint64 conversion keeps math.MinInt64 representable.
		return "minus " + strings.Join(strings.Fields(spell(uint64(-(n+1))+1)), " ")
	}
	return strings.Join(strings.Fields(spell(uint64(n))), " ")
}

func spell(n uint64) string {
	switch {
	case n < 12:
		return satuan[n]
	case n < 20:
		return spell(n-10) + " belas"
	case n < 100:
		return spell(n/10) + " puluh " + spell(n%10)
	case n < 200:
		return "seratus " + spell(n-100)
	case n < 1000:
		return spell(n/100) + " ratus " + spell(n%100)
	case n < 2000:
		return "seribu " + spell(n-1000)
	case n < 1_000_000:
		return spell(n/1000) + " ribu " + spell(n%1000)
	case n < 1_000_000_000:
		return spell(n/1_000_000) + " juta " + spell(n%1_000_000)
	case n < 1_000_000_000_000:
		return spell(n/1_000_000_000) + " miliar " + spell(n%1_000_000_000)
	default:
		return spell(n/1_000_000_000_000) + " triliun " + spell(n%1_000_000_000_000)
	}
}

// FormatRupiah renders n with dot thousand separators, e.g. "Rp1.500.000".
func FormatRupiah(n int64) string {
	neg := n < 0
	digits := strconv.FormatInt(n, 10)
	if neg {
		digits = digits[1:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("Rp")
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte('.')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
