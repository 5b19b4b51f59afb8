package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/chatdepot/chatdepot/internal/chat"
	"github.com/chatdepot/chatdepot/internal/store"
	"github.com/chatdepot/chatdepot/internal/types"
)

type SendMessageRequest struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Content  string `json:"content"`
	DeviceId string `json:"device_id"`
}

type HeartbeatRequest struct {
	ClientId string `json:"client_id"`
}

func (s *ChatDepotApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatDepotApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ChatDepotApp) ensureRoom(w http.ResponseWriter, r *http.Request) {
	status, err := s.chat.EnsureRoom(r.PathValue("room"))
	if err != nil {
		errResp := errorResponse(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.RoomStatus{Status: string(status)})
}

func (s *ChatDepotApp) approveRoom(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chat.ApproveRoom(tok); err != nil {
		errResp := errorResponse(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.RoomStatus{Status: string(chat.StatusApproved)})
}

func (s *ChatDepotApp) denyRoom(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chat.DenyRoom(tok); err != nil {
		errResp := errorResponse(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.RoomStatus{Status: string(chat.StatusDenied)})
}

func (s *ChatDepotApp) confirmDevice(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chat.ConfirmDevice(tok); err != nil {
		errResp := errorResponse(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.Verified{Verified: true})
}

func (s *ChatDepotApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room := r.PathValue("room")
	msg, err := s.chat.Send(room, chat.PostParams{
		Nickname: req.Nickname,
		Email:    req.Email,
		Content:  req.Content,
		DeviceId: req.DeviceId,
	})
	if err != nil {
		var vr *chat.VerificationRequiredError
		if errors.As(err, &vr) {
			s.writeJson(w, http.StatusForbidden, types.Verification{
				VerificationRequired: true,
				DeviceId:             vr.DeviceId,
			})
			return
		}

		errResp := errorResponse(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, messageResponse(room, msg))
}

func (s *ChatDepotApp) getHistory(w http.ResponseWriter, r *http.Request) {
	var q chat.HistoryQuery

	if sinceStr := r.URL.Query().Get("since_id"); sinceStr != "" {
		sinceId, err := strconv.Atoi(sinceStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		q.SinceId = &sinceId
	}

	if beforeStr := r.URL.Query().Get("before_id"); beforeStr != "" {
		beforeId, err := strconv.Atoi(beforeStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		q.BeforeId = &beforeId
	}

	// Anything non-numeric falls back to the first page.
	q.Page = 1
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		q.Page = page
	}

	room := r.PathValue("room")
	history, err := s.chat.History(room, q)
	if err != nil {
		errResp := errorResponse(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := types.History{
		Messages: make([]types.Message, 0, len(history.Messages)),
		HasNext:  history.HasNext,
		HasPrev:  history.HasPrev,
		Total:    history.Total,
	}
	for _, msg := range history.Messages {
		resp.Messages = append(resp.Messages, messageResponse(room, msg))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatDepotApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	email := r.URL.Query().Get("email")
	deviceId := r.URL.Query().Get("device_id")

	if err := s.chat.DeleteMessage(r.PathValue("room"), id, email, deviceId); err != nil {
		errResp := errorResponse(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatDepotApp) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chat.Heartbeat(r.PathValue("room"), req.ClientId); err != nil {
		errResp := errorResponse(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatDepotApp) onlineCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.chat.OnlineCount(r.PathValue("room"))
	if err != nil {
		errResp := errorResponse(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.Online{Online: count})
}

func messageResponse(room string, msg store.Message) types.Message {
	return types.Message{
		Id:        msg.Id,
		Room:      room,
		Nickname:  msg.Nickname,
		Email:     msg.Email,
		Content:   msg.Content,
		Timestamp: msg.CreatedAt.Format(types.TimestampFormat),
	}
}
