package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchctl/switchctl/internal/config"
	"github.com/switchctl/switchctl/internal/model"
	"gorm.io/gorm"
)

func TestOpenMigratesAuditTables(t *testing.T) {
	gdb, err := Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "db", "audit.db")})
	require.NoError(t, err)

	rec := &model.ControlAudit{Device: "sw1", Property: "Reload", Outcome: model.ControlOutcomeApplied}
	require.NoError(t, gdb.Create(rec).Error)
	assert.NotZero(t, rec.ID)

	var count int64
	require.NoError(t, gdb.Model(&model.ControlAudit{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.True(t, gdb.Migrator().HasTable(&model.PollRecord{}))
}

func TestWithRetryStopsOnNonBusyError(t *testing.T) {
	calls := 0
	boom := errors.New("constraint failed")
	err := WithRetry(nil, func(*gorm.DB) error {
		calls++
		return boom
	}, 3)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	calls = 0
	err = WithRetry(nil, func(*gorm.DB) error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	}, 3)
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestHealthWithoutInit(t *testing.T) {
	db = nil
	assert.Error(t, Health())
	assert.NoError(t, Close())
}
