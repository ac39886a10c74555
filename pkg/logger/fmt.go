package logger

import (
	"errors"
	"fmt"
)

var errInvalidBool = errors.New("logger: invalid boolean value")

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
