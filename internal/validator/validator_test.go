package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindBody(t *testing.T, body string, dst any) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBind_CheatEventTag(t *testing.T) {
	Setup()

	var ok model.RecordEventRequest
	fields := bindBody(t, `{"attemptId":"7f1c2a3e-8a55-4c8e-9b8e-2d8f6f2d1a11","eventType":"tab-switch"}`, &ok)
	assert.Nil(t, fields)
	assert.Equal(t, "tab-switch", ok.EventType)

	var bad model.RecordEventRequest
	fields = bindBody(t, `{"attemptId":"7f1c2a3e-8a55-4c8e-9b8e-2d8f6f2d1a11","eventType":"sneeze"}`, &bad)
	require.Contains(t, fields, "eventType")
	assert.Equal(t, "eventType must be a known anti-cheat event type", fields["eventType"])
}

func TestBind_AutosaveRequest(t *testing.T) {
	Setup()

	var req model.AutosaveRequest
	fields := bindBody(t, `{"attemptId":"nope","answers":{}}`, &req)
	assert.Contains(t, fields, "attemptId")
	assert.Contains(t, fields, "currentQuestionIndex")

	fields = bindBody(t, `{"attemptId":"7f1c2a3e-8a55-4c8e-9b8e-2d8f6f2d1a11","currentQuestionIndex":0}`, &req)
	assert.Nil(t, fields)
}

func TestBind_SyntaxErrorGoesToDetail(t *testing.T) {
	Setup()
	var req model.AutosaveRequest
	fields := bindBody(t, `{"attemptId":`, &req)
	assert.Contains(t, fields, "detail")
}
