package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/models"
)

func strPtr(v string) *string { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		table   models.Table
		next    models.TableStatus
		change  StatusChange
		wantErr error
	}{
		{
			name:  "checkout occupied without order",
			table: models.Table{Status: models.TableOccupied},
			next:  models.TableDirty,
		},
		{
			name:    "checkout occupied with active order",
			table:   models.Table{Status: models.TableOccupied, ActiveOrderID: int64Ptr(3)},
			next:    models.TableDirty,
			wantErr: apperr.ErrConflict,
		},
		{
			name:  "cleaning confirmed",
			table: models.Table{Status: models.TableDirty},
			next:  models.TableFree,
		},
		{
			name:   "check in with matching code",
			table:  models.Table{Status: models.TableReserved, ReservationCode: strPtr("R-42")},
			next:   models.TableOccupied,
			change: StatusChange{ReservationCode: strPtr("R-42")},
		},
		{
			name:    "check in with wrong code",
			table:   models.Table{Status: models.TableReserved, ReservationCode: strPtr("R-42")},
			next:    models.TableOccupied,
			change:  StatusChange{ReservationCode: strPtr("R-41")},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "check in without code",
			table:   models.Table{Status: models.TableReserved, ReservationCode: strPtr("R-42")},
			next:    models.TableOccupied,
			wantErr: apperr.ErrValidation,
		},
		{
			name:   "free to broken with reason",
			table:  models.Table{Status: models.TableFree},
			next:   models.TableBroken,
			change: StatusChange{Reason: strPtr("wobbly leg"), StaffID: int64Ptr(7)},
		},
		{
			name:    "dirty to broken without reason",
			table:   models.Table{Status: models.TableDirty},
			next:    models.TableBroken,
			change:  StatusChange{Reason: strPtr("  ")},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "occupied to broken with reason",
			table:   models.Table{Status: models.TableOccupied},
			next:    models.TableBroken,
			change:  StatusChange{Reason: strPtr("spilled soup")},
			wantErr: apperr.ErrInvalidTransition,
		},
		{
			name:    "free to occupied directly",
			table:   models.Table{Status: models.TableFree},
			next:    models.TableOccupied,
			wantErr: apperr.ErrInvalidTransition,
		},
		{
			name:    "dirty to occupied",
			table:   models.Table{Status: models.TableDirty},
			next:    models.TableOccupied,
			wantErr: apperr.ErrInvalidTransition,
		},
		{
			name:    "broken to dirty",
			table:   models.Table{Status: models.TableBroken},
			next:    models.TableDirty,
			wantErr: apperr.ErrInvalidTransition,
		},
		{
			name:    "reserve without code",
			table:   models.Table{Status: models.TableFree},
			next:    models.TableReserved,
			wantErr: apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := tt.table
			before := table
			err := Apply(&table, tt.next, tt.change)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, table)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.next, table.Status)
		})
	}
}

func TestApplyBrokenRecordsAndRepairClears(t *testing.T) {
	table := models.Table{Status: models.TableReserved, ReservationCode: strPtr("R-1")}

	require.NoError(t, Apply(&table, models.TableBroken, StatusChange{Reason: strPtr("leak"), StaffID: int64Ptr(4)}))
	assert.Equal(t, "leak", *table.BrokenReason)
	assert.Equal(t, int64(4), *table.BrokenBy)
	assert.Nil(t, table.ReservationCode)

	require.NoError(t, Apply(&table, models.TableFree, StatusChange{}))
	assert.Nil(t, table.BrokenReason)
	assert.Nil(t, table.BrokenBy)
}

func TestOccupyAndRelease(t *testing.T) {
	table := models.Table{Number: 2, Status: models.TableFree}

	require.NoError(t, Occupy(&table, 10))
	assert.Equal(t, models.TableOccupied, table.Status)
	assert.Equal(t, int64(10), *table.ActiveOrderID)

	assert.ErrorIs(t, Occupy(&table, 11), apperr.ErrConflict)
	assert.ErrorIs(t, Release(&table, 11), apperr.ErrConflict)

	require.NoError(t, Release(&table, 10))
	assert.Equal(t, models.TableDirty, table.Status)
	assert.Nil(t, table.ActiveOrderID)

	assert.ErrorIs(t, Occupy(&table, 12), apperr.ErrInvalidTransition)
}
