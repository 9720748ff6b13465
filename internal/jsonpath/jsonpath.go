// Package jsonpath builds gjson/sjson paths from literal object keys.
package jsonpath

import "strings"

// special characters in gjson and sjson path syntax
const special = `\.*?|#@!=<>%,:{}[]"`

// Escape quotes a single object key so it is matched literally.
func Escape(key string) string {
	if !strings.ContainsAny(key, special) {
		return key
	}
	var b strings.Builder
	b.Grow(len(key) + 4)
	for _, r := range key {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Join appends an escaped key to a parent path.
func Join(parent, key string) string {
	if parent == "" {
		return Escape(key)
	}
	return parent + "." + Escape(key)
}

// Index appends an array index to a parent path.
func Index(parent string, i int) string {
	idx := itoa(i)
	if parent == "" {
		return idx
	}
	return parent + "." + idx
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
