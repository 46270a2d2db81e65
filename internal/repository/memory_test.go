package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-scheme/backend/pkg/models"
)

func TestMemoryRepository(t *testing.T) {
	runContract(t, func(t *testing.T) Repository { return NewMemoryRepository() })
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s := &models.Scheme{OrganizationID: testOrg, Name: "copy"}
	require.NoError(t, repo.CreateScheme(ctx, s))

	got, err := repo.GetScheme(ctx, testOrg, s.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := repo.GetScheme(ctx, testOrg, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "copy", again.Name)
}

func TestMemoryRepository_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s := &models.Scheme{OrganizationID: testOrg, Name: "race"}
	require.NoError(t, repo.CreateScheme(ctx, s))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.ClaimDeploy(ctx, testOrg, s.ID, s.Version); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
