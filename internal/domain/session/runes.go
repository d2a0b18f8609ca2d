package session

// truncateRunes 按字符截断，中文内容不会被截出半个字
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
