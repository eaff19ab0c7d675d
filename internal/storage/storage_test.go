package storage

import (
	"os"
	"path/filepath"
	"testing"

	"etf_momentum/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	st, err := s.Load("2024-07-01")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestSaveAndLoadSameDay(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nested", "state.json"))
	open := decimal.RequireFromString("45.00")

	require.NoError(t, s.Save(models.DayState{
		Date:           "2024-07-01",
		State:          "AWAIT_EXIT",
		CapturedOpen:   &open,
		Chosen:         "TQQQ",
		EntryAttempted: true,
		Trades:         []models.TradeRecord{{ID: "t1", Symbol: "TQQQ", Action: models.Buy, Quantity: 1}},
	}))

	_, err := os.Stat(s.Path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file left behind")

	st, err := s.Load("2024-07-01")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, models.DayStateVersion, st.Version)
	assert.True(t, st.CapturedOpen.Equal(open))
	assert.True(t, st.EntryAttempted)
	require.Len(t, st.Trades, 1)
	assert.Equal(t, "TQQQ", st.Trades[0].Symbol)
}

func TestLoadIgnoresOtherDay(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, s.Save(models.DayState{Date: "2024-06-28", Chosen: "SQQQ"}))

	st, err := s.Load("2024-07-01")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestLoadMigratesLegacyState(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	legacy := `{"version":"1.0","date":"2024-07-01","state":"POSITIONS_CLOSED","entry_attempted":true,"trades":[]}`
	require.NoError(t, os.WriteFile(s.Path, []byte(legacy), 0o644))

	st, err := s.Load("2024-07-01")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "1.1", st.Version)
	assert.True(t, st.ExitAttempted)

	// The migration was persisted.
	again, err := s.Load("2024-07-01")
	require.NoError(t, err)
	assert.Equal(t, "1.1", again.Version)
}

func TestLoadCorruptFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, os.WriteFile(s.Path, []byte("{not json"), 0o644))

	_, err := s.Load("2024-07-01")
	assert.Error(t, err)
}
