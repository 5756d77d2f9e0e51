package controller

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"clientportal/models"
	"clientportal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agreePath(leadID uint) string {
	return "/api/v1/leads/" + strconv.Itoa(int(leadID)) + "/agree"
}

func TestAgreeToServiceConvertsLead(t *testing.T) {
	f := newFixture(t)
	key := utils.CallerKey("+12125550101", "")
	lead := f.createActivity(models.CallActivity{
		CallerName:   "Alice Carter",
		CallerNumber: "+12125550101",
		CallerKey:    key,
		Category:     models.CategoryVeryGood,
	})

	resp := f.request(http.MethodPost, agreePath(lead.ID), map[string]interface{}{
		"services": []map[string]interface{}{
			{"service_id": "svc-roof", "service_name": "Roof replacement", "agreed_price": 12500.0},
			{"service_id": "svc-gutters", "service_name": "Gutter guards", "agreed_price": 900.0},
		},
		"source":      "phone",
		"funnel_data": map[string]interface{}{"roof_age": "15 years"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	d := data(t, resp)

	client := d["active_client"].(map[string]interface{})
	assert.Equal(t, "Alice Carter", client["client_name"])
	services := client["services"].([]interface{})
	assert.Len(t, services, 2)

	var reloaded models.CallActivity
	require.NoError(t, f.db.First(&reloaded, lead.ID).Error)
	assert.Equal(t, 5, reloaded.Rating)
	assert.Equal(t, models.CategoryConverted, reloaded.Category)
	assert.Equal(t, models.CategorySourceManual, reloaded.CategorySource, "conversion pins the category")
}

func TestAgreeToServiceValidation(t *testing.T) {
	f := newFixture(t)
	lead := f.createActivity(models.CallActivity{CallerKey: utils.CallerKey("+12125550101", "")})

	resp := f.request(http.MethodPost, agreePath(lead.ID), map[string]interface{}{
		"services": []map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "at least one service is required")

	resp = f.request(http.MethodPost, agreePath(lead.ID), map[string]interface{}{
		"services": []map[string]interface{}{
			{"service_id": "svc-1", "agreed_price": -10.0},
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "negative prices are rejected")

	anonymous := f.createActivity(models.CallActivity{CallerKey: ""})
	resp = f.request(http.MethodPost, agreePath(anonymous.ID), map[string]interface{}{
		"services": []map[string]interface{}{{"service_id": "svc-1", "agreed_price": 100.0}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "no caller identity, no active client")

	resp = f.request(http.MethodPost, agreePath(9999), map[string]interface{}{
		"services": []map[string]interface{}{{"service_id": "svc-1", "agreed_price": 100.0}},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAgreeTwiceReusesActiveClient(t *testing.T) {
	f := newFixture(t)
	key := utils.CallerKey("+12125550101", "")
	first := f.createActivity(models.CallActivity{CallerKey: key, CallerNumber: "+12125550101"})
	second := f.createActivity(models.CallActivity{CallerKey: key, CallerNumber: "+12125550101"})

	resp := f.request(http.MethodPost, agreePath(first.ID), map[string]interface{}{
		"services": []map[string]interface{}{{"service_id": "svc-1", "agreed_price": 100.0}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.request(http.MethodPost, agreePath(second.ID), map[string]interface{}{
		"services": []map[string]interface{}{{"service_id": "svc-2", "agreed_price": 250.0}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var clients int64
	f.db.Model(&models.ActiveClient{}).Where("user_id = ?", f.user.ID).Count(&clients)
	assert.EqualValues(t, 1, clients, "same caller key lands on one client record")

	var services int64
	f.db.Model(&models.AgreedService{}).Count(&services)
	assert.EqualValues(t, 2, services, "service lines accumulate")
}

func TestAgreeLinksJourney(t *testing.T) {
	f := newFixture(t)
	key := utils.CallerKey("+12125550101", "")
	lead := f.createActivity(models.CallActivity{CallerKey: key, CallerNumber: "+12125550101"})
	journey := f.createJourneyForLead(lead, time.Now().UTC())

	resp := f.request(http.MethodPost, agreePath(lead.ID), map[string]interface{}{
		"services": []map[string]interface{}{{"service_id": "svc-1", "agreed_price": 500.0}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var reloaded models.Journey
	require.NoError(t, f.db.First(&reloaded, journey.ID).Error)
	assert.Equal(t, models.JourneyStatusActiveClient, reloaded.Status)
	require.NotNil(t, reloaded.ActiveClientID)

	var client models.ActiveClient
	require.NoError(t, f.db.First(&client, *reloaded.ActiveClientID).Error)
	assert.Equal(t, key, client.CallerKey)
}

func TestArchiveActiveClient(t *testing.T) {
	f := newFixture(t)
	key := utils.CallerKey("+12125550101", "")
	lead := f.createActivity(models.CallActivity{CallerKey: key})

	resp := f.request(http.MethodPost, agreePath(lead.ID), map[string]interface{}{
		"services": []map[string]interface{}{{"service_id": "svc-1", "agreed_price": 100.0}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	clientID := int(data(t, resp)["active_client"].(map[string]interface{})["id"].(float64))

	resp = f.request(http.MethodPost, "/api/v1/active-clients/"+strconv.Itoa(clientID)+"/archive", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var client models.ActiveClient
	require.NoError(t, f.db.First(&client, clientID).Error)
	assert.NotNil(t, client.ArchivedAt)

	resp = f.request(http.MethodGet, "/api/v1/active-clients/", nil)
	body := decodeBody(t, resp)
	assert.Empty(t, body["data"], "archived clients leave the default listing")

	resp = f.request(http.MethodGet, "/api/v1/active-clients/?archived=true", nil)
	body = decodeBody(t, resp)
	assert.Len(t, body["data"], 1)
}
