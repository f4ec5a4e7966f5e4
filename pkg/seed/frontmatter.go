package seed

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

var delimiter = []byte("---")

// splitFrontmatter separates YAML front matter from the body and decodes it
// into meta. Content without an opening delimiter is all body.
func splitFrontmatter(content []byte, meta any) (string, error) {
	if !bytes.HasPrefix(content, delimiter) {
		return string(content), nil
	}

	rest := bytes.TrimLeft(bytes.TrimPrefix(content, delimiter), "\r\n")
	if len(rest) == 0 {
		return "", fmt.Errorf("%w: no content after opening delimiter", ErrInvalidFrontmatter)
	}

	end := bytes.Index(rest, delimiter)
	if end == -1 {
		return "", fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	head := rest[:end]
	body := rest[end+len(delimiter):]
	switch {
	case bytes.HasPrefix(body, []byte("\r\n")):
		body = body[2:]
	case bytes.HasPrefix(body, []byte("\n")):
		body = body[1:]
	}

	if len(bytes.TrimSpace(head)) > 0 {
		if err := yaml.Unmarshal(head, meta); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}
	return string(body), nil
}
