package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatdepot/chatdepot/internal/chat"
	"github.com/chatdepot/chatdepot/internal/config"
	"github.com/chatdepot/chatdepot/internal/store"
	"github.com/chatdepot/chatdepot/internal/testutil"
	"github.com/chatdepot/chatdepot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*ChatDepotApp, *chat.MockRoomService) {
	t.Helper()

	mockSvc := &chat.MockRoomService{}
	app := NewChatDepotApp(http.NewServeMux(), testutil.TestLogger(t), mockSvc, &config.Config{})
	return app, mockSvc
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, mockSvc := newTestApp(t)
			defer mockSvc.AssertExpectations(t)

			mockSvc.On("Ping").Return(tc.mockErr).Once()

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestEnsureRoomHandler(t *testing.T) {
	tcases := []struct {
		name         string
		mockStatus   chat.Status
		mockErr      error
		expectedCode int
	}{
		{
			name:         "approved room",
			mockStatus:   chat.StatusApproved,
			expectedCode: http.StatusOK,
		},
		{
			name:         "pending room",
			mockStatus:   chat.StatusPending,
			expectedCode: http.StatusOK,
		},
		{
			name:         "validation error",
			mockStatus:   chat.Status(""),
			mockErr:      &chat.ValidationError{Fields: []string{"room"}},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, mockSvc := newTestApp(t)
			defer mockSvc.AssertExpectations(t)

			mockSvc.On("EnsureRoom", "general").Return(tc.mockStatus, tc.mockErr).Once()

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/rooms/general/ensure", nil)
			req.SetPathValue("room", "general")
			app.ensureRoom(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.mockErr == nil {
				var resp types.RoomStatus
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.Equal(t, string(tc.mockStatus), resp.Status)
			}
		})
	}
}

func TestApproveRoomHandler(t *testing.T) {
	tcases := []struct {
		name         string
		token        string
		mockErr      error
		expectedCode int
	}{
		{
			name:         "successful approval",
			token:        "tok",
			expectedCode: http.StatusOK,
		},
		{
			name:         "missing token",
			token:        "",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid token",
			token:        "tok",
			mockErr:      chat.ErrTokenInvalid,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "no pending request",
			token:        "tok",
			mockErr:      chat.ErrRequestNotFound,
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, mockSvc := newTestApp(t)
			defer mockSvc.AssertExpectations(t)

			if tc.token != "" {
				mockSvc.On("ApproveRoom", tc.token).Return(tc.mockErr).Once()
			}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/rooms/approve?token="+tc.token, nil)
			app.approveRoom(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestSendMessageHandler(t *testing.T) {
	now := time.Now()
	tcases := []struct {
		name         string
		body         any
		mockMsg      store.Message
		mockErr      error
		expectMock   bool
		expectedCode int
	}{
		{
			name: "successful send",
			body: SendMessageRequest{
				Nickname: "alice",
				Email:    "alice@example.com",
				Content:  "hi",
				DeviceId: "d1",
			},
			mockMsg: store.Message{
				Id:        1,
				Nickname:  "alice",
				Email:     "alice@example.com",
				Content:   "hi",
				CreatedAt: now,
			},
			expectMock:   true,
			expectedCode: http.StatusCreated,
		},
		{
			name:         "invalid json body",
			body:         "invalid json",
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "verification required",
			body: SendMessageRequest{
				Nickname: "alice",
				Email:    "alice@example.com",
				Content:  "hi",
				DeviceId: "d1",
			},
			mockErr:      &chat.VerificationRequiredError{DeviceId: "d1"},
			expectMock:   true,
			expectedCode: http.StatusForbidden,
		},
		{
			name: "room not approved",
			body: SendMessageRequest{
				Nickname: "alice",
				Email:    "alice@example.com",
				Content:  "hi",
				DeviceId: "d1",
			},
			mockErr:      chat.ErrRoomNotApproved,
			expectMock:   true,
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, mockSvc := newTestApp(t)
			defer mockSvc.AssertExpectations(t)

			if tc.expectMock {
				mockSvc.On("Send", "general", mock.AnythingOfType("chat.PostParams")).
					Return(tc.mockMsg, tc.mockErr).Once()
			}

			buf := &bytes.Buffer{}
			require.NoError(t, json.NewEncoder(buf).Encode(tc.body))

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/rooms/general/messages", buf)
			req.SetPathValue("room", "general")
			app.sendMessage(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)

			switch {
			case tc.expectedCode == http.StatusCreated:
				var resp types.Message
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.Equal(t, 1, resp.Id)
				assert.Equal(t, "general", resp.Room)
				assert.Equal(t, now.Format(types.TimestampFormat), resp.Timestamp)
			case tc.expectedCode == http.StatusForbidden:
				var resp types.Verification
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.True(t, resp.VerificationRequired)
				assert.Equal(t, "d1", resp.DeviceId)
			}
		})
	}
}

func TestGetHistoryHandler(t *testing.T) {
	three := 3

	tcases := []struct {
		name          string
		query         string
		expectedQuery chat.HistoryQuery
		expectMock    bool
		expectedCode  int
	}{
		{
			name:          "default page",
			query:         "",
			expectedQuery: chat.HistoryQuery{Page: 1},
			expectMock:    true,
			expectedCode:  http.StatusOK,
		},
		{
			name:          "explicit page",
			query:         "?page=3",
			expectedQuery: chat.HistoryQuery{Page: 3},
			expectMock:    true,
			expectedCode:  http.StatusOK,
		},
		{
			name:          "non-numeric page coerces to one",
			query:         "?page=abc",
			expectedQuery: chat.HistoryQuery{Page: 1},
			expectMock:    true,
			expectedCode:  http.StatusOK,
		},
		{
			name:          "since id cursor",
			query:         "?since_id=3",
			expectedQuery: chat.HistoryQuery{SinceId: &three, Page: 1},
			expectMock:    true,
			expectedCode:  http.StatusOK,
		},
		{
			name:          "before id cursor",
			query:         "?before_id=3",
			expectedQuery: chat.HistoryQuery{BeforeId: &three, Page: 1},
			expectMock:    true,
			expectedCode:  http.StatusOK,
		},
		{
			name:         "invalid before id",
			query:        "?before_id=abc",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid since id",
			query:        "?since_id=abc",
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, mockSvc := newTestApp(t)
			defer mockSvc.AssertExpectations(t)

			if tc.expectMock {
				mockSvc.On("History", "general", mock.MatchedBy(func(q chat.HistoryQuery) bool {
					if q.Page != tc.expectedQuery.Page {
						return false
					}
					if (q.SinceId == nil) != (tc.expectedQuery.SinceId == nil) {
						return false
					}
					if q.SinceId != nil && *q.SinceId != *tc.expectedQuery.SinceId {
						return false
					}
					if (q.BeforeId == nil) != (tc.expectedQuery.BeforeId == nil) {
						return false
					}
					if q.BeforeId != nil && *q.BeforeId != *tc.expectedQuery.BeforeId {
						return false
					}
					return true
				})).Return(chat.HistoryPage{
					Messages: []store.Message{{Id: 1, Nickname: "alice", Email: "alice@example.com", Content: "hi", CreatedAt: time.Now()}},
					Total:    1,
				}, nil).Once()
			}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/rooms/general/messages"+tc.query, nil)
			req.SetPathValue("room", "general")
			app.getHistory(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusOK {
				var resp types.History
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				require.Len(t, resp.Messages, 1)
				assert.Equal(t, "general", resp.Messages[0].Room)
				assert.Equal(t, 1, resp.Total)
			}
		})
	}
}

func TestDeleteMessageHandler(t *testing.T) {
	tcases := []struct {
		name         string
		id           string
		mockErr      error
		expectMock   bool
		expectedCode int
	}{
		{
			name:         "successful delete",
			id:           "7",
			expectMock:   true,
			expectedCode: http.StatusNoContent,
		},
		{
			name:         "invalid id",
			id:           "abc",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "forbidden",
			id:           "7",
			mockErr:      chat.ErrForbidden,
			expectMock:   true,
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "message not found",
			id:           "7",
			mockErr:      chat.ErrNotFound,
			expectMock:   true,
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, mockSvc := newTestApp(t)
			defer mockSvc.AssertExpectations(t)

			if tc.expectMock {
				mockSvc.On("DeleteMessage", "general", 7, "alice@example.com", "d1").
					Return(tc.mockErr).Once()
			}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodDelete,
				"/api/rooms/general/messages/"+tc.id+"?email=alice@example.com&device_id=d1", nil)
			req.SetPathValue("room", "general")
			req.SetPathValue("id", tc.id)
			app.deleteMessage(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestHeartbeatHandler(t *testing.T) {
	tcases := []struct {
		name         string
		body         any
		mockErr      error
		expectMock   bool
		expectedCode int
	}{
		{
			name:         "successful heartbeat",
			body:         HeartbeatRequest{ClientId: "c1"},
			expectMock:   true,
			expectedCode: http.StatusNoContent,
		},
		{
			name:         "missing client id",
			body:         HeartbeatRequest{},
			mockErr:      &chat.ValidationError{Fields: []string{"client_id"}},
			expectMock:   true,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "room not approved",
			body:         HeartbeatRequest{ClientId: "c1"},
			mockErr:      chat.ErrRoomNotApproved,
			expectMock:   true,
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, mockSvc := newTestApp(t)
			defer mockSvc.AssertExpectations(t)

			if tc.expectMock {
				mockSvc.On("Heartbeat", "general", mock.AnythingOfType("string")).
					Return(tc.mockErr).Once()
			}

			buf := &bytes.Buffer{}
			require.NoError(t, json.NewEncoder(buf).Encode(tc.body))

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/rooms/general/heartbeat", buf)
			req.SetPathValue("room", "general")
			app.heartbeat(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestOnlineCountHandler(t *testing.T) {
	app, mockSvc := newTestApp(t)
	defer mockSvc.AssertExpectations(t)

	mockSvc.On("OnlineCount", "general").Return(2, nil).Once()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/general/online", nil)
	req.SetPathValue("room", "general")
	app.onlineCount(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp types.Online
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Online)
}

func TestConfirmDeviceHandler(t *testing.T) {
	tcases := []struct {
		name         string
		token        string
		mockErr      error
		expectedCode int
	}{
		{
			name:         "successful confirmation",
			token:        "tok",
			expectedCode: http.StatusOK,
		},
		{
			name:         "missing token",
			token:        "",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid token",
			token:        "tok",
			mockErr:      chat.ErrTokenInvalid,
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app, mockSvc := newTestApp(t)
			defer mockSvc.AssertExpectations(t)

			if tc.token != "" {
				mockSvc.On("ConfirmDevice", tc.token).Return(tc.mockErr).Once()
			}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/verify?token="+tc.token, nil)
			app.confirmDevice(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusOK {
				var resp types.Verified
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.True(t, resp.Verified)
			}
		})
	}
}
