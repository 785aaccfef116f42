package memory_test

import (
	"testing"

	"github.com/PabloGalante/farum-voice/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-voice/internal/adapters/storage/storagetest"
	"github.com/PabloGalante/farum-voice/internal/domain"
)

func TestScenarioStore(t *testing.T) {
	storagetest.RunScenarioStore(t, func(t *testing.T) domain.ScenarioStore {
		return memory.NewScenarioStore()
	})
}

func TestProfileStore(t *testing.T) {
	storagetest.RunProfileStore(t, func(t *testing.T) domain.ProfileStore {
		return memory.NewProfileStore()
	})
}
