package pstool

import (
	"fmt"
	"strings"
)

// ValidateCommand is the pure pre-spawn gate: a command that fails here is
// never handed to the interpreter. maxChars <= 0 disables the length bound.
func ValidateCommand(command string, maxChars int) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("command is empty")
	}
	if maxChars > 0 && len([]rune(command)) > maxChars {
		return fmt.Errorf("command exceeds %d characters", maxChars)
	}
	return nil
}
