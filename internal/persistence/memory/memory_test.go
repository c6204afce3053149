package memory

import (
	"testing"

	"example.com/fittrack/internal/persistence/persistencetest"
)

func TestRepositoryCompliance(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistencetest.Repository {
		return NewRepository()
	})
}
