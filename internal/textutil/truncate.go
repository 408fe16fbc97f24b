package textutil

// Truncate shortens s to at most n runes, appending suffix when it cuts.
// Multi-byte characters are never split.
func Truncate(s string, n int, suffix string) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + suffix
}
