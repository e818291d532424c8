package http

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/coldmailer/coldmailer/internal/model"
	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClicks struct {
	inserted  []model.LinkClick
	insertErr error
}

func (f *fakeClicks) Insert(_ context.Context, c model.LinkClick) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, c)
	return nil
}

func (f *fakeClicks) ListByCampaign(context.Context, int64, int) ([]model.LinkClick, error) {
	return nil, nil
}

func (f *fakeClicks) ListByLead(context.Context, int64, int) ([]model.LinkClick, error) {
	return nil, nil
}

func doTrack(t *testing.T, clicks *fakeClicks, path string, lead, campaign string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/track/:lead_id/:campaign_id")
	c.SetParamNames("lead_id", "campaign_id")
	c.SetParamValues(lead, campaign)

	require.NoError(t, trackHandler(clicks, nil)(c))
	return rec
}

func TestTrackRedirectsAndRecords(t *testing.T) {
	clicks := &fakeClicks{}
	rec := doTrack(t, clicks, "/track/7/3?url=https%3A%2F%2Fexample.com%2Fx&eqid=01ABC", "7", "3")

	assert.Equal(t, 302, rec.Code)
	assert.Equal(t, "https://example.com/x", rec.Header().Get("Location"))

	require.Len(t, clicks.inserted, 1)
	click := clicks.inserted[0]
	assert.Equal(t, int64(7), click.LeadID.Int64)
	assert.Equal(t, int64(3), click.CampaignID.Int64)
	assert.Equal(t, "https://example.com/x", click.URL)
	assert.Equal(t, "01ABC", click.QueueItemID.String)
}

func TestTrackMissingURL(t *testing.T) {
	rec := doTrack(t, &fakeClicks{}, "/track/7/3", "7", "3")
	assert.Equal(t, 400, rec.Code)
}

func TestTrackBadIDsStillRedirect(t *testing.T) {
	clicks := &fakeClicks{}
	rec := doTrack(t, clicks, "/track/x/y?url=https%3A%2F%2Fexample.com", "x", "y")

	assert.Equal(t, 302, rec.Code)
	require.Len(t, clicks.inserted, 1)
	assert.False(t, clicks.inserted[0].LeadID.Valid)
	assert.False(t, clicks.inserted[0].CampaignID.Valid)
}

func TestTrackInsertFailureStillRedirects(t *testing.T) {
	clicks := &fakeClicks{insertErr: errors.New("mysql down")}
	rec := doTrack(t, clicks, "/track/7/3?url=https%3A%2F%2Fexample.com", "7", "3")

	assert.Equal(t, 302, rec.Code)
}
