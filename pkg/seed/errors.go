package seed

import "errors"

var (
	// ErrInvalidFrontmatter indicates a template file with malformed front matter.
	ErrInvalidFrontmatter = errors.New("seed: invalid frontmatter")

	// ErrInvalidTemplate indicates a template definition missing required fields.
	ErrInvalidTemplate = errors.New("seed: invalid template")

	// ErrInvalidSequence indicates a malformed sequence definition.
	ErrInvalidSequence = errors.New("seed: invalid sequence")
)
