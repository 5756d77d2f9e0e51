package worker

import (
	"testing"
	"time"

	"clientportal/config"
	"clientportal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func retentionDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func TestRunRetentionPassRedactsOldClosedJourneys(t *testing.T) {
	db := retentionDB(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-100 * 24 * time.Hour)
	recent := now.Add(-10 * 24 * time.Hour)

	oldArchived := models.Journey{
		UserID: 1, ClientName: "A", Status: models.JourneyStatusArchived,
		ArchivedAt: &old, Symptoms: models.StringList{"no heat"},
	}
	recentArchived := models.Journey{
		UserID: 1, ClientName: "B", Status: models.JourneyStatusArchived,
		ArchivedAt: &recent, Symptoms: models.StringList{"leaky faucet"},
	}
	active := models.Journey{
		UserID: 1, ClientName: "C", Status: models.JourneyStatusInProgress,
		Symptoms: models.StringList{"broken window"},
	}
	require.NoError(t, db.Create(&oldArchived).Error)
	require.NoError(t, db.Create(&recentArchived).Error)
	require.NoError(t, db.Create(&active).Error)

	// Lost journeys have no archived_at; their last update stands in.
	oldLost := models.Journey{
		UserID: 1, ClientName: "D", Status: models.JourneyStatusLost,
		Symptoms: models.StringList{"quoted too high"},
	}
	require.NoError(t, db.Create(&oldLost).Error)
	require.NoError(t, db.Model(&oldLost).UpdateColumn("updated_at", old).Error)

	require.NoError(t, RunRetentionPass(db, now))

	var j models.Journey
	require.NoError(t, db.First(&j, oldArchived.ID).Error)
	assert.True(t, j.SymptomsRedacted)
	assert.Empty(t, j.Symptoms)

	require.NoError(t, db.First(&j, oldLost.ID).Error)
	assert.True(t, j.SymptomsRedacted)
	assert.Empty(t, j.Symptoms)

	require.NoError(t, db.First(&j, recentArchived.ID).Error)
	assert.False(t, j.SymptomsRedacted, "inside the retention window")
	assert.Equal(t, models.StringList{"leaky faucet"}, j.Symptoms)

	require.NoError(t, db.First(&j, active.ID).Error)
	assert.False(t, j.SymptomsRedacted, "open journeys are never redacted")
}

func TestRunRetentionPassRedactsAgreedPricesOnArchivedClients(t *testing.T) {
	db := retentionDB(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-100 * 24 * time.Hour)
	recent := now.Add(-5 * 24 * time.Hour)

	oldClient := models.ActiveClient{UserID: 1, CallerKey: "k1", ClientName: "A", ArchivedAt: &old}
	recentClient := models.ActiveClient{UserID: 1, CallerKey: "k2", ClientName: "B", ArchivedAt: &recent}
	liveClient := models.ActiveClient{UserID: 1, CallerKey: "k3", ClientName: "C"}
	require.NoError(t, db.Create(&oldClient).Error)
	require.NoError(t, db.Create(&recentClient).Error)
	require.NoError(t, db.Create(&liveClient).Error)

	for _, c := range []models.ActiveClient{oldClient, recentClient, liveClient} {
		require.NoError(t, db.Create(&models.AgreedService{
			ActiveClientID: c.ID, ServiceID: "svc-1", AgreedPrice: 1200,
		}).Error)
	}

	require.NoError(t, RunRetentionPass(db, now))

	var svc models.AgreedService
	require.NoError(t, db.Where("active_client_id = ?", oldClient.ID).First(&svc).Error)
	assert.Zero(t, svc.AgreedPrice)
	assert.NotNil(t, svc.RedactedAt)

	require.NoError(t, db.Where("active_client_id = ?", recentClient.ID).First(&svc).Error)
	assert.EqualValues(t, 1200, svc.AgreedPrice)
	assert.Nil(t, svc.RedactedAt)

	require.NoError(t, db.Where("active_client_id = ?", liveClient.ID).First(&svc).Error)
	assert.EqualValues(t, 1200, svc.AgreedPrice)
}

func TestRunRetentionPassIsIdempotent(t *testing.T) {
	db := retentionDB(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-100 * 24 * time.Hour)

	journey := models.Journey{
		UserID: 1, ClientName: "A", Status: models.JourneyStatusArchived,
		ArchivedAt: &old, Symptoms: models.StringList{"no heat"},
	}
	require.NoError(t, db.Create(&journey).Error)
	client := models.ActiveClient{UserID: 1, CallerKey: "k1", ClientName: "A", ArchivedAt: &old}
	require.NoError(t, db.Create(&client).Error)
	require.NoError(t, db.Create(&models.AgreedService{ActiveClientID: client.ID, ServiceID: "svc", AgreedPrice: 500}).Error)

	require.NoError(t, RunRetentionPass(db, now))

	var svc models.AgreedService
	require.NoError(t, db.Where("active_client_id = ?", client.ID).First(&svc).Error)
	firstStamp := *svc.RedactedAt

	require.NoError(t, RunRetentionPass(db, now.Add(time.Hour)))

	require.NoError(t, db.Where("active_client_id = ?", client.ID).First(&svc).Error)
	assert.True(t, svc.RedactedAt.Equal(firstStamp), "second pass does not restamp")

	var j models.Journey
	require.NoError(t, db.First(&j, journey.ID).Error)
	assert.True(t, j.SymptomsRedacted)
}
