/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackPayload(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := slackPayload("Docaudit", errors.New("analysis worker crashed"), at)

	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, "Error From Docaudit 🐞", msg.Blocks[0].Text.Text)
	assert.Equal(t, "*Error:*\nanalysis worker crashed", msg.Blocks[1].Fields[0].Text)
	assert.True(t, strings.HasPrefix(msg.Blocks[2].Fields[0].Text, "*Time:*\n"))
}

func TestSlackNotification(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var received slackMessage
	httpmock.RegisterResponder(http.MethodPost, "https://hooks.slack.test/services/x",
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &received)
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	err := SlackNotification(context.Background(), "https://hooks.slack.test/services/x", "Docaudit", errors.New("boom"))
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	require.Len(t, received.Blocks, 3)
}

func TestSlackNotificationServerError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://hooks.slack.test/services/x",
		httpmock.NewStringResponder(http.StatusInternalServerError, "down"))

	err := SlackNotification(context.Background(), "https://hooks.slack.test/services/x", "Docaudit", errors.New("boom"))
	assert.Error(t, err)
}
