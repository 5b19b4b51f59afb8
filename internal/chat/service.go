package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chatdepot/chatdepot/internal/config"
	"github.com/chatdepot/chatdepot/internal/mail"
	"github.com/chatdepot/chatdepot/internal/stats"
	"github.com/chatdepot/chatdepot/internal/store"
	"github.com/chatdepot/chatdepot/internal/token"
)

// Status is the outcome of an ensure-room request.
type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusDenied   Status = "denied"
)

const (
	// pageSize is the window size for page and beforeId history modes.
	pageSize = 10
	// presenceTTL is how long a heartbeat keeps a client online.
	presenceTTL = 30 * time.Second
)

// Token payload claim keys.
const (
	claimRoom   = "room"
	claimEmail  = "email"
	claimDevice = "device"
)

// refPattern matches inline reply references of the form #<digits>#.
var refPattern = regexp.MustCompile(`#(\d+)#`)

type PostParams struct {
	Nickname string
	Email    string
	Content  string
	DeviceId string
}

// HistoryQuery selects one of the three history modes. A non-nil
// SinceId wins over a non-nil BeforeId, which wins over Page.
type HistoryQuery struct {
	SinceId  *int
	BeforeId *int
	Page     int
}

type HistoryPage struct {
	Messages []store.Message
	HasNext  bool
	HasPrev  bool
	Total    int
}

// RoomService is the transport-neutral surface of the chat core.
type RoomService interface {
	Ping() error
	EnsureRoom(name string) (Status, error)
	ApproveRoom(tok string) error
	DenyRoom(tok string) error
	ConfirmDevice(tok string) error
	Send(room string, p PostParams) (store.Message, error)
	History(room string, q HistoryQuery) (HistoryPage, error)
	DeleteMessage(room string, id int, email, deviceId string) error
	Heartbeat(room, clientId string) error
	OnlineCount(room string) (int, error)
}

// Service orchestrates the room lifecycle, the per-room stores and the
// capability-token workflows. Operations on different rooms share no
// state beyond the registry database.
type Service struct {
	log             *log.Logger
	rooms           *store.Factory
	registry        *store.RegistryStore
	tokens          *token.Service
	notifier        mail.Notifier
	stats           stats.StatsProvider
	adminEmail      string
	baseURL         string
	requireApproval bool
	now             func() time.Time
}

func NewService(logger *log.Logger, rooms *store.Factory, registry *store.RegistryStore, tokens *token.Service, notifier mail.Notifier, statsProvider stats.StatsProvider, cfg *config.Config) *Service {
	return &Service{
		log:             logger,
		rooms:           rooms,
		registry:        registry,
		tokens:          tokens,
		notifier:        notifier,
		stats:           statsProvider,
		adminEmail:      cfg.AdminEmail,
		baseURL:         cfg.BaseURL,
		requireApproval: cfg.RequireApproval,
		now:             time.Now,
	}
}

func (s *Service) Ping() error {
	return s.registry.Ping()
}

// EnsureRoom reports whether a room may be used, creating its store
// immediately in auto-approval mode or filing a pending request and
// notifying the administrator otherwise.
func (s *Service) EnsureRoom(name string) (Status, error) {
	if strings.TrimSpace(name) == "" {
		return "", &ValidationError{Fields: []string{"room"}}
	}

	// An existing store is authoritative proof of approval.
	if s.rooms.Exists(name) {
		return StatusApproved, nil
	}

	if !s.requireApproval {
		if _, err := s.rooms.GetOrCreate(name); err != nil {
			return "", err
		}
		s.stats.Incr(stats.RoomsProvisioned)
		return StatusApproved, nil
	}

	req, created, err := s.registry.CreatePendingRoom(name, s.now())
	if err != nil {
		return "", fmt.Errorf("create pending room: %w", err)
	}

	switch req.Status {
	case store.StatusApproved:
		// Approved on record but the store file is gone; re-provision.
		if _, err := s.rooms.GetOrCreate(name); err != nil {
			return "", err
		}
		return StatusApproved, nil
	case store.StatusDenied:
		return StatusDenied, nil
	}

	if created {
		s.stats.Incr(stats.RoomsPending)
		s.sendApprovalRequest(name)
	}

	return StatusPending, nil
}

// sendApprovalRequest mails the administrator single-use approve and
// deny links for a newly requested room. Failures are logged only; the
// request stays pending either way.
func (s *Service) sendApprovalRequest(name string) {
	approveTok, err := s.tokens.Sign(map[string]string{claimRoom: name}, token.PurposeApproveRoom)
	if err != nil {
		s.log.Printf("sign approve token for room %q: %v", name, err)
		return
	}
	denyTok, err := s.tokens.Sign(map[string]string{claimRoom: name}, token.PurposeDenyRoom)
	if err != nil {
		s.log.Printf("sign deny token for room %q: %v", name, err)
		return
	}

	body := fmt.Sprintf(
		"A new chat room %q was requested.\n\nApprove: %s/api/rooms/approve?token=%s\nDeny: %s/api/rooms/deny?token=%s\n",
		name, s.baseURL, approveTok, s.baseURL, denyTok,
	)
	if err := s.notifier.Send([]string{s.adminEmail}, fmt.Sprintf("Room request: %s", name), body); err != nil {
		s.log.Printf("send approval request for room %q: %v", name, err)
	}
}

// ApproveRoom provisions the room named by a valid approve-room token.
// Approving an already approved room is a no-op.
func (s *Service) ApproveRoom(tok string) error {
	payload, err := s.tokens.Verify(tok, token.PurposeApproveRoom, token.ApproveRoomMaxAge)
	if err != nil {
		s.log.Printf("approve-room token rejected: %v", err)
		return ErrTokenInvalid
	}
	name := payload[claimRoom]

	req, err := s.registry.GetPendingRoom(name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("get pending room: %w", err)
	}

	if _, err := s.rooms.GetOrCreate(name); err != nil {
		return err
	}

	if req.Status == store.StatusApproved {
		return nil
	}

	if err := s.registry.SetRoomStatus(name, store.StatusApproved); err != nil {
		return fmt.Errorf("set room status: %w", err)
	}
	s.stats.Incr(stats.RoomsProvisioned)

	return nil
}

// DenyRoom marks the room named by a valid deny-room token as denied.
// An approved room never regresses to denied.
func (s *Service) DenyRoom(tok string) error {
	payload, err := s.tokens.Verify(tok, token.PurposeDenyRoom, token.DenyRoomMaxAge)
	if err != nil {
		s.log.Printf("deny-room token rejected: %v", err)
		return ErrTokenInvalid
	}
	name := payload[claimRoom]

	req, err := s.registry.GetPendingRoom(name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("get pending room: %w", err)
	}

	switch req.Status {
	case store.StatusApproved:
		s.log.Printf("ignoring denial of approved room %q", name)
		return nil
	case store.StatusDenied:
		return nil
	}

	return s.registry.SetRoomStatus(name, store.StatusDenied)
}

// ConfirmDevice records the device-email binding carried by a valid
// email-confirm token. The first confirmation for a device wins; later
// ones leave the binding unchanged.
func (s *Service) ConfirmDevice(tok string) error {
	payload, err := s.tokens.Verify(tok, token.PurposeEmailConfirm, token.EmailConfirmMaxAge)
	if err != nil {
		s.log.Printf("email-confirm token rejected: %v", err)
		return ErrTokenInvalid
	}

	email, device := payload[claimEmail], payload[claimDevice]
	if email == "" || device == "" {
		return ErrTokenInvalid
	}

	return s.registry.CreateDevice(device, email, s.now())
}

// Send appends a message to a room's log. Posting from an unverified
// device does not persist anything; instead a verification link is
// mailed and a VerificationRequiredError is returned so the client can
// retry after confirmation.
func (s *Service) Send(room string, p PostParams) (store.Message, error) {
	nickname := strings.TrimSpace(p.Nickname)
	email := strings.TrimSpace(p.Email)
	content := strings.TrimSpace(p.Content)
	device := strings.TrimSpace(p.DeviceId)

	var missing []string
	if nickname == "" {
		missing = append(missing, "nickname")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if content == "" {
		missing = append(missing, "content")
	}
	if device == "" {
		missing = append(missing, "device_id")
	}
	if len(missing) > 0 {
		return store.Message{}, &ValidationError{Fields: missing}
	}

	st, err := s.ensureStore(room)
	if err != nil {
		return store.Message{}, err
	}

	if _, err := s.registry.GetDevice(device); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return store.Message{}, fmt.Errorf("get device: %w", err)
		}
		s.requestDeviceVerification(email, device, room)
		return store.Message{}, &VerificationRequiredError{DeviceId: device}
	}

	content, targets, err := s.transformReplies(st, content, email)
	if err != nil {
		return store.Message{}, err
	}

	msg, err := st.AppendMessage(nickname, email, content, s.now())
	if err != nil {
		return store.Message{}, fmt.Errorf("append message: %w", err)
	}
	s.stats.Incr(stats.MessagesSent)

	s.notifyReplyTargets(targets, room, nickname)

	return msg, nil
}

// requestDeviceVerification mails a confirmation link binding the
// device to the claimed email. Failures are logged only.
func (s *Service) requestDeviceVerification(email, device, room string) {
	tok, err := s.tokens.Sign(map[string]string{
		claimEmail:  email,
		claimDevice: device,
		claimRoom:   room,
	}, token.PurposeEmailConfirm)
	if err != nil {
		s.log.Printf("sign email-confirm token for device %q: %v", device, err)
		return
	}

	body := fmt.Sprintf(
		"Confirm your email to post in %q:\n\n%s/api/verify?token=%s\n\nThe link expires in one hour.\n",
		room, s.baseURL, tok,
	)
	if err := s.notifier.Send([]string{email}, "Confirm your email", body); err != nil {
		s.log.Printf("send verification mail to %q: %v", email, err)
		return
	}
	s.stats.Incr(stats.VerificationMails)
}

// transformReplies rewrites every #<digits># reference to a highlighted
// inline form and collects the distinct authors of referenced messages,
// excluding the poster. Unresolvable references are skipped. The
// rewritten content is what gets stored; the transform is destructive.
func (s *Service) transformReplies(st *store.RoomStore, content, posterEmail string) (string, []string, error) {
	matches := refPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return content, nil, nil
	}

	seen := make(map[int]struct{})
	targetSet := make(map[string]struct{})
	var targets []string
	for _, m := range matches {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		ref, err := st.GetMessage(id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return "", nil, fmt.Errorf("resolve reference %d: %w", id, err)
		}

		if strings.EqualFold(ref.Email, posterEmail) {
			continue
		}
		key := strings.ToLower(ref.Email)
		if _, ok := targetSet[key]; ok {
			continue
		}
		targetSet[key] = struct{}{}
		targets = append(targets, ref.Email)
	}

	return refPattern.ReplaceAllString(content, `<span class="msg-ref">#$1#</span>`), targets, nil
}

// notifyReplyTargets mails the authors referenced by a new message.
// The message is already committed; delivery failure is logged only.
func (s *Service) notifyReplyTargets(targets []string, room, nickname string) {
	if len(targets) == 0 {
		return
	}

	body := fmt.Sprintf("%s replied to your message in %q.\n", nickname, room)
	if err := s.notifier.Send(targets, fmt.Sprintf("New reply in %s", room), body); err != nil {
		s.log.Printf("send reply notice for room %q: %v", room, err)
	}
}

// History runs one of the three pagination modes over a room's log.
// Unknown rooms yield an empty page with total 0, never an error.
func (s *Service) History(room string, q HistoryQuery) (HistoryPage, error) {
	empty := HistoryPage{Messages: make([]store.Message, 0)}

	st, err := s.readableStore(room)
	if err != nil {
		return empty, err
	}
	if st == nil {
		return empty, nil
	}

	switch {
	case q.SinceId != nil:
		msgs, err := st.MessagesSince(*q.SinceId)
		if err != nil {
			return empty, err
		}
		return HistoryPage{Messages: msgs, Total: len(msgs)}, nil

	case q.BeforeId != nil:
		msgs, err := st.MessagesBefore(*q.BeforeId, pageSize)
		if err != nil {
			return empty, err
		}
		total, err := st.CountBefore(*q.BeforeId)
		if err != nil {
			return empty, err
		}
		var hasNext bool
		if len(msgs) > 0 {
			// More history exists iff something sits below the oldest
			// id just returned.
			hasNext, err = st.HasMessageBelow(msgs[len(msgs)-1].Id)
			if err != nil {
				return empty, err
			}
		}
		return HistoryPage{Messages: msgs, HasNext: hasNext, Total: total}, nil

	default:
		page := q.Page
		if page < 1 {
			page = 1
		}
		offset := (page - 1) * pageSize

		total, err := st.CountMessages()
		if err != nil {
			return empty, err
		}
		msgs, err := st.MessagesPage(offset, pageSize)
		if err != nil {
			return empty, err
		}
		return HistoryPage{
			Messages: msgs,
			HasNext:  offset+len(msgs) < total,
			HasPrev:  page > 1,
			Total:    total,
		}, nil
	}
}

// DeleteMessage removes a message if the requesting device is verified
// for the given email and that email is the author's or the
// administrator's.
func (s *Service) DeleteMessage(room string, id int, email, deviceId string) error {
	st, err := s.readableStore(room)
	if err != nil {
		return err
	}
	if st == nil {
		return ErrRoomNotApproved
	}

	// Deletion demands the joint device+email binding, stricter than
	// the device-only check used for posting.
	dev, err := s.registry.GetDevice(deviceId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrForbidden
		}
		return fmt.Errorf("get device: %w", err)
	}
	if dev.Email != email {
		return ErrForbidden
	}

	msg, err := st.GetMessage(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get message: %w", err)
	}

	if !strings.EqualFold(email, msg.Email) && !strings.EqualFold(email, s.adminEmail) {
		return ErrForbidden
	}

	if err := st.DeleteMessage(id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.stats.Incr(stats.MessagesDeleted)

	return nil
}

// Heartbeat sweeps expired rows and upserts the caller's. The sweep is
// a side effect of every beat, not a background task.
func (s *Service) Heartbeat(room, clientId string) error {
	if strings.TrimSpace(clientId) == "" {
		return &ValidationError{Fields: []string{"client_id"}}
	}

	st, err := s.ensureStore(room)
	if err != nil {
		return err
	}

	now := s.now()
	if err := st.PurgeHeartbeatsBefore(now.Add(-presenceTTL)); err != nil {
		return fmt.Errorf("purge heartbeats: %w", err)
	}
	if err := st.UpsertHeartbeat(clientId, now); err != nil {
		return fmt.Errorf("upsert heartbeat: %w", err)
	}
	s.stats.Incr(stats.Heartbeats)

	return nil
}

// OnlineCount reports how many clients beat within the TTL window.
// Unknown rooms count zero rather than erroring.
func (s *Service) OnlineCount(room string) (int, error) {
	st, err := s.readableStore(room)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, nil
	}

	return st.CountHeartbeatsSince(s.now().Add(-presenceTTL))
}

// ensureStore returns the room's store for a write operation,
// provisioning it in auto-approval mode and failing with
// ErrRoomNotApproved otherwise.
func (s *Service) ensureStore(name string) (*store.RoomStore, error) {
	if s.rooms.Exists(name) {
		return s.rooms.GetOrCreate(name)
	}

	if !s.requireApproval {
		st, err := s.rooms.GetOrCreate(name)
		if err == nil {
			s.stats.Incr(stats.RoomsProvisioned)
		}
		return st, err
	}

	req, err := s.registry.GetPendingRoom(name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotApproved
		}
		return nil, fmt.Errorf("get pending room: %w", err)
	}
	if req.Status != store.StatusApproved {
		return nil, ErrRoomNotApproved
	}

	return s.rooms.GetOrCreate(name)
}

// readableStore returns the room's store for a read operation, or nil
// when the room was never provisioned. Reads never provision.
func (s *Service) readableStore(name string) (*store.RoomStore, error) {
	if !s.rooms.Exists(name) {
		return nil, nil
	}
	return s.rooms.GetOrCreate(name)
}
