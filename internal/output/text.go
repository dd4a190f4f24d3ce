package output

// Truncate shortens s to at most maxLen bytes without splitting a rune,
// adding "..." when there is room for it.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		cut := 0
		for i := range s {
			if i > maxLen {
				break
			}
			cut = i
		}
		return s[:cut]
	}

	target := maxLen - 3
	prev := 0
	for i := range s {
		if i > target {
			return s[:prev] + "..."
		}
		prev = i
	}
	return s[:prev] + "..."
}
