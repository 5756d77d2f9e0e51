package controller

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"clientportal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func journeyPath(id uint, parts ...string) string {
	p := "/api/v1/journeys/" + strconv.Itoa(int(id))
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func parseTime(t *testing.T, v interface{}) time.Time {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "expected timestamp string, got %v", v)
	parsed, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return parsed
}

// createJourneyForLead drives the API and pins the journey's creation time
// so template due dates are deterministic.
func (f *fixture) createJourneyForLead(lead *models.CallActivity, anchor time.Time) *models.Journey {
	f.t.Helper()
	resp := f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{
		"lead_call_id": lead.ID,
		"symptoms":     []string{"no heat", "strange noise"},
	})
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	d := data(f.t, resp)
	id := uint(d["journey"].(map[string]interface{})["id"].(float64))

	require.NoError(f.t, f.db.Model(&models.Journey{}).Where("id = ?", id).
		Update("created_at", anchor).Error)

	var journey models.Journey
	require.NoError(f.t, f.db.First(&journey, id).Error)
	return &journey
}

func (f *fixture) putTemplate(offsets []int) {
	f.t.Helper()
	steps := make([]map[string]interface{}, 0, len(offsets))
	labels := []string{"First follow-up call", "Check-in text", "Final follow-up"}
	for i, w := range offsets {
		steps = append(steps, map[string]interface{}{
			"label":        labels[i%len(labels)],
			"channel":      "call",
			"offset_weeks": w,
		})
	}
	resp := f.request(http.MethodPut, "/api/v1/journey-template", map[string]interface{}{"steps": steps})
	require.Equal(f.t, http.StatusOK, resp.StatusCode)
}

func TestCreateJourneyValidation(t *testing.T) {
	f := newFixture(t)
	lead := f.createActivity(models.CallActivity{CallerName: "Alice"})

	resp := f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "one of lead_call_id or active_client_id is required")

	resp = f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{
		"lead_call_id":     lead.ID,
		"active_client_id": 1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "both is as bad as neither")

	resp = f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{"lead_call_id": 9999})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{"lead_call_id": lead.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	d := data(t, resp)
	journey := d["journey"].(map[string]interface{})
	assert.Equal(t, "Alice", journey["client_name"], "client fields copy from the lead")
	assert.Equal(t, models.JourneyStatusPending, journey["status"])
}

func TestCreateJourneyContactOverrides(t *testing.T) {
	f := newFixture(t)
	lead := f.createActivity(models.CallActivity{
		CallerName:   "Alice",
		CallerNumber: "+12125550101",
		CallerEmail:  "alice@lead.example.com",
	})

	// Body-supplied contact details win over the ones copied from the lead.
	resp := f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{
		"lead_call_id": lead.ID,
		"client_phone": "+19998887777",
		"client_email": "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	journey := data(t, resp)["journey"].(map[string]interface{})
	assert.Equal(t, "+19998887777", journey["client_phone"])
	assert.Equal(t, "alice@example.com", journey["client_email"])

	resp = f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{
		"lead_call_id": lead.ID,
		"force_new":    true,
		"client_email": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Without overrides the lead's contact details carry through.
	resp = f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{
		"lead_call_id": lead.ID,
		"force_new":    true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	journey = data(t, resp)["journey"].(map[string]interface{})
	assert.Equal(t, "+12125550101", journey["client_phone"])
	assert.Equal(t, "alice@lead.example.com", journey["client_email"])

	id := uint(journey["id"].(float64))
	resp = f.request(http.MethodPatch, journeyPath(id), map[string]interface{}{
		"client_phone": "+15554443333",
		"client_email": "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.request(http.MethodPatch, journeyPath(id), map[string]interface{}{
		"client_phone": "+15554443333",
		"client_email": "alice@new.example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reloaded models.Journey
	require.NoError(t, f.db.First(&reloaded, id).Error)
	assert.Equal(t, "+15554443333", reloaded.ClientPhone)
	assert.Equal(t, "alice@new.example.com", reloaded.ClientEmail)
}

func TestCreateJourneyDeduplicatesPerLead(t *testing.T) {
	f := newFixture(t)
	lead := f.createActivity(models.CallActivity{})

	resp := f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{"lead_call_id": lead.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	firstID := data(t, resp)["journey"].(map[string]interface{})["id"]

	resp = f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{"lead_call_id": lead.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := data(t, resp)
	assert.Equal(t, true, d["existing"])
	assert.Equal(t, firstID, d["journey"].(map[string]interface{})["id"])

	resp = f.request(http.MethodPost, "/api/v1/journeys/", map[string]interface{}{
		"lead_call_id": lead.ID,
		"force_new":    true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEqual(t, firstID, data(t, resp)["journey"].(map[string]interface{})["id"])
}

func TestApplyTemplateSchedulesSteps(t *testing.T) {
	f := newFixture(t)
	anchor := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	lead := f.createActivity(models.CallActivity{})
	journey := f.createJourneyForLead(lead, anchor)
	f.putTemplate([]int{0, 2, 6})

	resp := f.request(http.MethodPost, journeyPath(journey.ID, "apply-template"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := data(t, resp)

	steps := d["steps"].([]interface{})
	require.Len(t, steps, 3)
	wantDue := []time.Time{
		anchor,
		anchor.AddDate(0, 0, 14),
		anchor.AddDate(0, 0, 42),
	}
	for i, raw := range steps {
		step := raw.(map[string]interface{})
		assert.EqualValues(t, i+1, step["position"])
		assert.True(t, parseTime(t, step["due_at"]).Equal(wantDue[i]),
			"step %d due at %v", i+1, step["due_at"])
		assert.Nil(t, step["completed_at"])
	}
	assert.True(t, parseTime(t, d["next_action_at"]).Equal(anchor),
		"next action is the first uncompleted step")

	// A second apply without replace must not clobber the schedule.
	resp = f.request(http.MethodPost, journeyPath(journey.ID, "apply-template"), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.request(http.MethodPost, journeyPath(journey.ID, "apply-template"), map[string]interface{}{"replace": true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApplyTemplateWithoutTemplate(t *testing.T) {
	f := newFixture(t)
	lead := f.createActivity(models.CallActivity{})
	journey := f.createJourneyForLead(lead, time.Now().UTC())

	resp := f.request(http.MethodPost, journeyPath(journey.ID, "apply-template"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStepCompletionAdvancesNextAction(t *testing.T) {
	f := newFixture(t)
	anchor := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	lead := f.createActivity(models.CallActivity{})
	journey := f.createJourneyForLead(lead, anchor)
	f.putTemplate([]int{0, 2, 6})
	resp := f.request(http.MethodPost, journeyPath(journey.ID, "apply-template"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var steps []models.JourneyStep
	require.NoError(t, f.db.Where("journey_id = ?", journey.ID).Order("position ASC").Find(&steps).Error)
	require.Len(t, steps, 3)

	resp = f.request(http.MethodPatch,
		journeyPath(journey.ID, "steps", strconv.Itoa(int(steps[0].ID))),
		map[string]interface{}{"completed": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reloaded models.Journey
	require.NoError(t, f.db.First(&reloaded, journey.ID).Error)
	require.NotNil(t, reloaded.NextActionAt)
	assert.True(t, reloaded.NextActionAt.Equal(anchor.AddDate(0, 0, 14)),
		"next action moves to the second step")

	// A second completion of the same step loses the race.
	resp = f.request(http.MethodPatch,
		journeyPath(journey.ID, "steps", strconv.Itoa(int(steps[0].ID))),
		map[string]interface{}{"completed": true})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Un-completing brings the step back into the schedule.
	resp = f.request(http.MethodPatch,
		journeyPath(journey.ID, "steps", strconv.Itoa(int(steps[0].ID))),
		map[string]interface{}{"completed": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, f.db.First(&reloaded, journey.ID).Error)
	require.NotNil(t, reloaded.NextActionAt)
	assert.True(t, reloaded.NextActionAt.Equal(anchor))
}

func TestAddAndDeleteStep(t *testing.T) {
	f := newFixture(t)
	lead := f.createActivity(models.CallActivity{})
	journey := f.createJourneyForLead(lead, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))

	due := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	resp := f.request(http.MethodPost, journeyPath(journey.ID, "steps"), map[string]interface{}{
		"label":  "Send brochure",
		"due_at": due.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := data(t, resp)
	assert.EqualValues(t, 1, first["position"])

	resp = f.request(http.MethodPost, journeyPath(journey.ID, "steps"), map[string]interface{}{
		"label": "Second touch",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 2, data(t, resp)["position"])

	var reloaded models.Journey
	require.NoError(t, f.db.First(&reloaded, journey.ID).Error)
	require.NotNil(t, reloaded.NextActionAt)
	assert.True(t, reloaded.NextActionAt.Equal(due))

	stepID := strconv.Itoa(int(first["id"].(float64)))
	resp = f.request(http.MethodDelete, journeyPath(journey.ID, "steps", stepID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.db.First(&reloaded, journey.ID).Error)
	assert.Nil(t, reloaded.NextActionAt, "remaining step has no due date")

	resp = f.request(http.MethodDelete, journeyPath(journey.ID, "steps", stepID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateJourneyStatus(t *testing.T) {
	f := newFixture(t)
	lead := f.createActivity(models.CallActivity{})
	journey := f.createJourneyForLead(lead, time.Now().UTC())

	resp := f.request(http.MethodPatch, journeyPath(journey.ID), map[string]interface{}{
		"status": models.JourneyStatusInProgress,
		"paused": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reloaded models.Journey
	require.NoError(t, f.db.First(&reloaded, journey.ID).Error)
	assert.Equal(t, models.JourneyStatusInProgress, reloaded.Status)
	assert.True(t, reloaded.Paused)

	resp = f.request(http.MethodPatch, journeyPath(journey.ID), map[string]interface{}{
		"status": models.JourneyStatusArchived,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "archival has its own endpoint")

	resp = f.request(http.MethodPatch, journeyPath(journey.ID), map[string]interface{}{
		"status": "on_hold",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestArchiveAndRestore(t *testing.T) {
	f := newFixture(t)
	lead := f.createActivity(models.CallActivity{})
	journey := f.createJourneyForLead(lead, time.Now().UTC())
	require.NoError(t, f.db.Model(journey).Update("status", models.JourneyStatusInProgress).Error)

	resp := f.request(http.MethodPost, journeyPath(journey.ID, "archive"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var archived models.Journey
	require.NoError(t, f.db.First(&archived, journey.ID).Error)
	assert.Equal(t, models.JourneyStatusArchived, archived.Status)
	assert.Equal(t, models.JourneyStatusInProgress, archived.PrevStatus)
	assert.NotNil(t, archived.ArchivedAt)
	assert.Equal(t, f.user.Email, archived.ArchivedBy)

	// Archived journeys leave the default listing.
	resp = f.request(http.MethodGet, "/api/v1/journeys/", nil)
	body := decodeBody(t, resp)
	assert.Empty(t, body["data"])

	resp = f.request(http.MethodGet, "/api/v1/journeys/?archived=true", nil)
	body = decodeBody(t, resp)
	assert.Len(t, body["data"], 1)

	// A status patch cannot revive an archived journey.
	resp = f.request(http.MethodPatch, journeyPath(journey.ID), map[string]interface{}{
		"status": models.JourneyStatusPending,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.request(http.MethodPost, journeyPath(journey.ID, "restore"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var restored models.Journey
	require.NoError(t, f.db.First(&restored, journey.ID).Error)
	assert.Equal(t, models.JourneyStatusInProgress, restored.Status, "restore returns to the pre-archive status")
	assert.Nil(t, restored.ArchivedAt)

	resp = f.request(http.MethodPost, journeyPath(journey.ID, "restore"), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "only archived journeys restore")
}

func TestPutTemplateReplacesWholesale(t *testing.T) {
	f := newFixture(t)
	f.putTemplate([]int{0, 2, 6})
	f.putTemplate([]int{1})

	resp := f.request(http.MethodGet, "/api/v1/journey-template", nil)
	body := decodeBody(t, resp)
	steps := body["data"].([]interface{})
	require.Len(t, steps, 1)
	step := steps[0].(map[string]interface{})
	assert.EqualValues(t, 1, step["position"])
	assert.EqualValues(t, 1, step["offset_weeks"])
}
