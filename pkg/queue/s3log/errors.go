package s3log

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

var (
	ErrInvalidConfig = errors.New("s3log: invalid configuration")
	ErrAccessDenied  = errors.New("s3log: access denied")
	ErrUploadFailed  = errors.New("s3log: upload failed")
	ErrClosed        = errors.New("s3log: sink closed")
)

// wrapS3Error maps S3 API errors onto sentinels. The original error is
// formatted with %v so callers match on sentinels only.
func wrapS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrUploadFailed, err)
}
