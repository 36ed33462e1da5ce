package errors

import (
	"fmt"
)

var (
	ErrValidation           = fmt.Errorf("chronicle: validation failed")
	ErrNotFound             = fmt.Errorf("chronicle: not found")
	ErrStoreBusy            = fmt.Errorf("chronicle: store busy")
	ErrEmbeddingUnavailable = fmt.Errorf("chronicle: embedding unavailable")
	ErrCorruptIndex         = fmt.Errorf("chronicle: corrupt index")
	ErrInvalidConfig        = fmt.Errorf("chronicle: invalid config")
)
