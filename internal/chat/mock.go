package chat

import (
	"github.com/chatdepot/chatdepot/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockRoomService struct {
	mock.Mock
}

func (m *MockRoomService) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRoomService) EnsureRoom(name string) (Status, error) {
	args := m.Called(name)
	return args.Get(0).(Status), args.Error(1)
}
func (m *MockRoomService) ApproveRoom(tok string) error {
	args := m.Called(tok)
	return args.Error(0)
}
func (m *MockRoomService) DenyRoom(tok string) error {
	args := m.Called(tok)
	return args.Error(0)
}
func (m *MockRoomService) ConfirmDevice(tok string) error {
	args := m.Called(tok)
	return args.Error(0)
}
func (m *MockRoomService) Send(room string, p PostParams) (store.Message, error) {
	args := m.Called(room, p)
	return args.Get(0).(store.Message), args.Error(1)
}
func (m *MockRoomService) History(room string, q HistoryQuery) (HistoryPage, error) {
	args := m.Called(room, q)
	return args.Get(0).(HistoryPage), args.Error(1)
}
func (m *MockRoomService) DeleteMessage(room string, id int, email, deviceId string) error {
	args := m.Called(room, id, email, deviceId)
	return args.Error(0)
}
func (m *MockRoomService) Heartbeat(room, clientId string) error {
	args := m.Called(room, clientId)
	return args.Error(0)
}
func (m *MockRoomService) OnlineCount(room string) (int, error) {
	args := m.Called(room)
	return args.Int(0), args.Error(1)
}
