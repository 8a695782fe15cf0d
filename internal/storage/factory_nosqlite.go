//go:build !sqlite

package storage

import (
	"fmt"

	"fieldnet/internal/model"
)

func newSQLiteStore(_ string) (Store, error) {
	return nil, fmt.Errorf("%w: sqlite backend unavailable in this build; rebuild with -tags sqlite", model.ErrConfig)
}
