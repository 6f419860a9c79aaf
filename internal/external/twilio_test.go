package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/types"
)

func newTwilioTestClient(baseURL string) *TwilioClient {
	return NewTwilioClient(TwilioClientConfig{
		AccountSID: "AC123",
		AuthToken:  types.SecretString("tw-token"),
		FromNumber: "+15550001111",
		BaseURL:    baseURL,
		UserAgent:  "storepulse-test/1.0",
		Logger:     testLogger{},
	}, noSleep())
}

func TestTwilioClient_SendSMS_Created(t *testing.T) {
	var gotPath, gotTo, gotFrom string
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _, hasAuth = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotTo = r.PostFormValue("To")
		gotFrom = r.PostFormValue("From")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(twilioMessageResponse{SID: "SM123", Status: "queued"})
	}))
	defer srv.Close()

	c := newTwilioTestClient(srv.URL)
	result, err := c.SendSMS(context.Background(), SMSMessage{
		ToNumber: "+15559998888",
		Body:     "New lead captured: Jordan, king size, budget $1500",
	})
	require.NoError(t, err)

	assert.Equal(t, "SM123", result.ProviderMessageID)
	assert.Equal(t, "queued", result.Status)
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	assert.True(t, hasAuth, "twilio calls use basic auth")
	assert.Equal(t, "+15559998888", gotTo)
	assert.Equal(t, "+15550001111", gotFrom)
}

func TestTwilioClient_SendSMS_InvalidNumberIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(twilioErrorResponse{
			Code:    21211,
			Message: "The 'To' number is not a valid phone number.",
			Status:  400,
		})
	}))
	defer srv.Close()

	c := newTwilioTestClient(srv.URL)
	_, err := c.SendSMS(context.Background(), SMSMessage{ToNumber: "garbage", Body: "hi"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamRejected, appErr.Code)
	assert.Contains(t, appErr.Message, "21211")
}

func TestTwilioClient_SendSMS_ServerErrorMapsToUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTwilioTestClient(srv.URL)
	_, err := c.SendSMS(context.Background(), SMSMessage{ToNumber: "+15559998888", Body: "hi"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
}
