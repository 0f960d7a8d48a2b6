package domain

// =============================================================================
// Project Name
// =============================================================================

// DefaultProjectName is used when neither config nor topology names a project.
const DefaultProjectName = "stackup"

// NormalizeProjectName converts a name to a valid container-engine project name.
//
// The transformation rules are:
//   - Lowercase letters (a-z), digits (0-9), hyphens and underscores are kept
//   - Uppercase letters (A-Z) are converted to lowercase
//   - Spaces and dots are converted to hyphens
//   - All other characters are removed
//   - Leading hyphens and underscores are dropped
//
// An empty result falls back to DefaultProjectName.
//
// Example:
//
//	NormalizeProjectName("My Suite")   // returns "my-suite"
//	NormalizeProjectName("suite.v2!")  // returns "suite-v2"
//	NormalizeProjectName("__")         // returns "stackup"
func NormalizeProjectName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		case r == '-' || r == '_':
			if len(out) > 0 {
				out = append(out, r)
			}
		case r >= 'A' && r <= 'Z':
			out = append(out, r+32)
		case r == ' ' || r == '.':
			if len(out) > 0 {
				out = append(out, '-')
			}
		}
	}
	if len(out) == 0 {
		return DefaultProjectName
	}
	return string(out)
}
