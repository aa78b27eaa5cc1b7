package utils

// ToStringSlice converts a decoded JSON array into a string slice, dropping non-string
// entries. It never returns nil so callers can range over the result without a check.
func ToStringSlice(value any) []string {
	stringSlice := make([]string, 0)
	switch v := value.(type) {
	case []string:
		stringSlice = append(stringSlice, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				stringSlice = append(stringSlice, s)
			}
		}
	}
	return stringSlice
}

// StringValue returns the string held in a decoded claim, or "" when absent or not a string.
func StringValue(value any) string {
	s, _ := value.(string)
	return s
}
