package forge

// MaxResourceNameLength bounds sanitized resource names.
const MaxResourceNameLength = 64

// Sanitize turns s into a valid resource name: the first 64 characters, with
// everything but ASCII letters and digits replaced by '-'.
func Sanitize(s string) string {
	out := make([]byte, 0, min(len(s), MaxResourceNameLength))
	n := 0
	for _, c := range s {
		if n >= MaxResourceNameLength {
			break
		}
		n++
		if isAlnum(c) {
			out = append(out, byte(c))
		} else {
			out = append(out, '-')
		}
	}
	return string(out)
}

func isAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
