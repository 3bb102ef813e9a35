package validation

import (
	"fmt"
	"strings"
)

// hostDangerous are shell and markup metacharacters rejected in host names.
var hostDangerous = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}

// Host validates a bind host. Empty means all interfaces.
func Host(host string) error {
	for _, char := range hostDangerous {
		if strings.Contains(host, char) {
			return fmt.Errorf("host contains dangerous character %q", char)
		}
	}
	return nil
}

// Identifier accepts names made of letters, digits, dashes and underscores,
// as used for plugins and block types.
func Identifier(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	for _, char := range name {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '-' || char == '_') {
			return fmt.Errorf("name contains invalid character: %s", name)
		}
	}
	return nil
}

// FilePath rejects paths that cannot name a file.
func FilePath(path string) error {
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}
	return nil
}
