package memory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/sailclub/sailcredit/internal/storage"
	"github.com/sailclub/sailcredit/internal/storage/storagetest"
)

func TestMemoryStorage(t *testing.T) {
	suite.Run(t, &storagetest.Suite{
		NewStore: func(*storagetest.Suite) storage.Storage {
			return New()
		},
	})
}
