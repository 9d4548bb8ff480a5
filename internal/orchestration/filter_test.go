package orchestration

import (
	"testing"

	"github.com/spboyer/sqleval/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTurns() []models.Turn {
	return []models.Turn{
		{TurnUID: "spider-001", DBID: "concert_singer"},
		{TurnUID: "spider-002", DBID: "pets_1"},
		{TurnUID: "cosql-001", DBID: "concert_singer"},
		{TurnUID: "cosql-002"},
	}
}

func TestFilterTurns_NoPatterns(t *testing.T) {
	result, err := FilterTurns(sampleTurns(), nil)
	require.NoError(t, err)
	assert.Len(t, result, 4)
}

func TestFilterTurns_ByUID(t *testing.T) {
	result, err := FilterTurns(sampleTurns(), []string{"cosql-*"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "cosql-001", result[0].TurnUID)
	assert.Equal(t, "cosql-002", result[1].TurnUID)
}

func TestFilterTurns_ByDatabase(t *testing.T) {
	result, err := FilterTurns(sampleTurns(), []string{"concert_*"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "spider-001", result[0].TurnUID)
	assert.Equal(t, "cosql-001", result[1].TurnUID)
}

func TestFilterTurns_MultiplePatterns(t *testing.T) {
	result, err := FilterTurns(sampleTurns(), []string{"spider-002", "cosql-002"})
	require.NoError(t, err)
	assert.Len(t, result, 2)
}

func TestFilterTurns_InvalidPattern(t *testing.T) {
	_, err := FilterTurns(sampleTurns(), []string{"["})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid turn filter pattern")
}
