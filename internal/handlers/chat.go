package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medilink-server/internal/chat"
	"medilink-server/internal/config"
	"medilink-server/internal/models"
	"medilink-server/internal/storage"
	"medilink-server/internal/utils"
)

// MessagePublisher announces stored messages on the realtime feed.
type MessagePublisher interface {
	Publish(ctx context.Context, msg chat.Message) error
}

// ChatHandler serves the time-boxed patient/clinician conversations.
type ChatHandler struct {
	DB         *gorm.DB
	Cfg        *config.Config
	Log        *zap.Logger
	Store      *chat.GormStore
	Publisher  MessagePublisher
	Subscriber chat.Subscriber
	Storage    storage.Storage
	Now        func() time.Time
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(db *gorm.DB, cfg *config.Config, log *zap.Logger, publisher MessagePublisher, subscriber chat.Subscriber, files storage.Storage) *ChatHandler {
	return &ChatHandler{
		DB:         db,
		Cfg:        cfg,
		Log:        log,
		Store:      chat.NewGormStore(db),
		Publisher:  publisher,
		Subscriber: subscriber,
		Storage:    files,
		Now:        time.Now,
	}
}

// Participant is the other side of a conversation as shown in lists.
type Participant struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// ConversationSummary is one conversation with its expiry state and activity.
type ConversationSummary struct {
	chat.Conversation
	State        chat.State    `json:"state"`
	Counterpart  Participant   `json:"counterpart"`
	Urgency      string        `json:"urgencyClass,omitempty"`
	LastMessage  *chat.Message `json:"lastMessage,omitempty"`
	UnreadCount  int64         `json:"unreadCount"`
	TriageOpened time.Time     `json:"triageCreatedAt"`
}

// PatientConversations groups a clinician's conversations by patient.
type PatientConversations struct {
	Patient       Participant           `json:"patient"`
	Conversations []ConversationSummary `json:"conversations"`
	UnreadCount   int64                 `json:"unreadCount"`
}

// ListConversations returns the patient's linked triages, or for clinicians
// the conversations grouped by patient with last message and unread count.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var triages []models.Triage
	var reader chat.Role
	switch role {
	case models.RolePatient:
		reader = chat.RolePatient
		if err := h.DB.WithContext(ctx).Preload("LinkedProfessional.User").
			Where("patient_id = ? AND linked_professional_id IS NOT NULL", userID).
			Order("created_at desc").
			Find(&triages).Error; err != nil {
			utils.InternalServerError(c, "Failed to fetch conversations: "+err.Error())
			return
		}
	case models.RoleClinician:
		reader = chat.RoleClinician
		pro, err := professionalForUser(ctx, h.DB, userID)
		if err != nil {
			respondProfessionalErr(c, err)
			return
		}
		if err := h.DB.WithContext(ctx).Preload("Patient").
			Where("linked_professional_id = ?", pro.ID).
			Order("created_at desc").
			Find(&triages).Error; err != nil {
			utils.InternalServerError(c, "Failed to fetch conversations: "+err.Error())
			return
		}
	default:
		utils.Forbidden(c, "Only patients and clinicians have conversations")
		return
	}

	summaries, err := h.summarize(ctx, triages, reader)
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch conversations: "+err.Error())
		return
	}

	if reader == chat.RolePatient {
		utils.Success(c, "Conversations fetched successfully", summaries)
		return
	}
	utils.Success(c, "Conversations fetched successfully", groupByPatient(summaries))
}

func (h *ChatHandler) summarize(ctx context.Context, triages []models.Triage, reader chat.Role) ([]ConversationSummary, error) {
	if len(triages) == 0 {
		return []ConversationSummary{}, nil
	}
	ids := make([]string, 0, len(triages))
	for _, t := range triages {
		ids = append(ids, t.ID)
	}

	type unreadRow struct {
		TriageID string
		Total    int64
	}
	var unread []unreadRow
	if err := h.DB.WithContext(ctx).Model(&models.ChatMessage{}).
		Select("triage_id, COUNT(*) AS total").
		Where("triage_id IN ? AND sender_role = ? AND read_status = ?", ids, string(reader.Other()), string(chat.StatusSent)).
		Group("triage_id").
		Scan(&unread).Error; err != nil {
		return nil, err
	}
	unreadBy := make(map[string]int64, len(unread))
	for _, u := range unread {
		unreadBy[u.TriageID] = u.Total
	}

	now := h.Now()
	out := make([]ConversationSummary, 0, len(triages))
	for _, t := range triages {
		conv, err := chat.ConversationFromTriage(t)
		if err != nil {
			continue
		}
		summary := ConversationSummary{
			Conversation: conv,
			State:        chat.ExpiryState(now, conv.ExpiresAt),
			Urgency:      string(t.UrgencyClass),
			UnreadCount:  unreadBy[t.ID],
			TriageOpened: t.CreatedAt,
		}
		if reader == chat.RolePatient && t.LinkedProfessional != nil {
			summary.Counterpart = Participant{ID: t.LinkedProfessional.ID, FullName: t.LinkedProfessional.User.FullName, PhotoURL: t.LinkedProfessional.User.PhotoURL}
		} else {
			summary.Counterpart = Participant{ID: t.PatientID, FullName: t.Patient.FullName, PhotoURL: t.Patient.PhotoURL}
		}

		var last models.ChatMessage
		err = h.DB.WithContext(ctx).Where("triage_id = ?", t.ID).Order("sent_at desc").Limit(1).Take(&last).Error
		switch {
		case err == nil:
			msg := chat.FromModel(last)
			summary.LastMessage = &msg
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

func groupByPatient(summaries []ConversationSummary) []PatientConversations {
	index := make(map[string]int)
	var groups []PatientConversations
	for _, s := range summaries {
		i, seen := index[s.PatientID]
		if !seen {
			i = len(groups)
			index[s.PatientID] = i
			groups = append(groups, PatientConversations{Patient: s.Counterpart})
		}
		groups[i].Conversations = append(groups[i].Conversations, s)
		groups[i].UnreadCount += s.UnreadCount
	}
	// Patients with the most recent activity first.
	latest := func(g PatientConversations) time.Time {
		var t time.Time
		for _, s := range g.Conversations {
			if s.LastMessage != nil && s.LastMessage.SentAt.After(t) {
				t = s.LastMessage.SentAt
			}
			if s.TriageOpened.After(t) {
				t = s.TriageOpened
			}
		}
		return t
	}
	sort.SliceStable(groups, func(i, j int) bool { return latest(groups[i]).After(latest(groups[j])) })
	if groups == nil {
		return []PatientConversations{}
	}
	return groups
}

// conversation loads :id and resolves the caller's side of it.
func (h *ChatHandler) conversation(c *gin.Context) (chat.Conversation, chat.Role, bool) {
	userID, role, ok := caller(c)
	if !ok {
		return chat.Conversation{}, "", false
	}
	ctx := c.Request.Context()

	conv, err := h.Store.Conversation(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			utils.NotFound(c, "Conversation not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return conv, "", false
	}

	switch role {
	case models.RolePatient:
		if conv.PatientID == userID {
			return conv, chat.RolePatient, true
		}
	case models.RoleClinician:
		pro, err := professionalForUser(ctx, h.DB, userID)
		if err != nil {
			respondProfessionalErr(c, err)
			return conv, "", false
		}
		if conv.ClinicianID == pro.ID {
			return conv, chat.RoleClinician, true
		}
	}
	utils.Forbidden(c, chat.ErrNotParticipant.Error())
	return conv, "", false
}

// ConversationDetail is a conversation with its expiry state.
type ConversationDetail struct {
	chat.Conversation
	State chat.State `json:"state"`
	Role  chat.Role  `json:"role"`
}

// GetConversation returns the conversation and whether it is still writable.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	conv, role, ok := h.conversation(c)
	if !ok {
		return
	}
	utils.Success(c, "Conversation fetched successfully", ConversationDetail{
		Conversation: conv,
		State:        chat.ExpiryState(h.Now(), conv.ExpiresAt),
		Role:         role,
	})
}

// GetMessages returns the conversation's messages ordered by send time.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	conv, _, ok := h.conversation(c)
	if !ok {
		return
	}
	feed := chat.NewFeed(conv.ID, h.Store)
	msgs, err := feed.Load(c.Request.Context())
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch messages: "+err.Error())
		return
	}
	utils.Success(c, "Messages fetched successfully", msgs)
}

// SendMessageRequest carries a text message.
type SendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// SendMessage stores a text message while the conversation is open.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		utils.BadRequest(c, "Message body cannot be empty")
		return
	}

	conv, role, ok := h.conversation(c)
	if !ok {
		return
	}
	if !h.open(c, conv) {
		return
	}

	h.appendAndPublish(c, conv, role, chat.KindText, body, "")
}

// UploadAttachment stores a file and sends it as an attachment message.
func (h *ChatHandler) UploadAttachment(c *gin.Context) {
	conv, role, ok := h.conversation(c)
	if !ok {
		return
	}
	if !h.open(c, conv) {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.BadRequest(c, "A file is required: "+err.Error())
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequest(c, "Unable to read uploaded file: "+err.Error())
		return
	}
	defer file.Close()

	obj, err := h.Storage.Save(c.Request.Context(), "chat/"+conv.ID, fileHeader.Filename, file)
	if err != nil {
		respondStorageErr(c, h.Log, err)
		return
	}

	body := strings.TrimSpace(c.PostForm("body"))
	if body == "" {
		body = filepath.Base(fileHeader.Filename)
	}
	h.appendAndPublish(c, conv, role, chat.KindAttachment, body, obj.URL)
}

// open answers 403 when the conversation has expired.
func (h *ChatHandler) open(c *gin.Context, conv chat.Conversation) bool {
	if chat.NewGate(conv.ExpiresAt).Open(h.Now()) {
		return true
	}
	utils.Forbidden(c, chat.ErrConversationExpired.Error())
	return false
}

func (h *ChatHandler) appendAndPublish(c *gin.Context, conv chat.Conversation, role chat.Role, kind chat.MessageKind, body, attachmentURL string) {
	ctx := c.Request.Context()
	msg, err := h.Store.Append(ctx, conv, role, kind, body, attachmentURL, h.Now().UTC())
	if err != nil {
		utils.InternalServerError(c, "Failed to send message: "+err.Error())
		return
	}
	if err := h.Publisher.Publish(ctx, msg); err != nil {
		// Stored messages are still delivered on the next load.
		h.Log.Warn("publish chat message",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
	utils.Created(c, "Message sent successfully", msg)
}

// MarkRead marks the other side's messages as read by the caller.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	conv, role, ok := h.conversation(c)
	if !ok {
		return
	}
	if err := h.Store.MarkRead(c.Request.Context(), conv.ID, role); err != nil {
		utils.InternalServerError(c, "Failed to mark messages as read: "+err.Error())
		return
	}
	utils.Success(c, "Messages marked as read", nil)
}

// Stream pushes the conversation as Server-Sent Events: a snapshot, every new
// message and the expiry state on connect and on every tick. The feed
// subscription and the ticker are released when the client disconnects.
func (h *ChatHandler) Stream(c *gin.Context) {
	conv, _, ok := h.conversation(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	session := &chat.Session{
		Feed:       chat.NewFeed(conv.ID, h.Store),
		Gate:       chat.NewGate(conv.ExpiresAt),
		Subscriber: h.Subscriber,
		Tick:       h.Cfg.Chat.Tick,
		Clock:      h.Now,
	}

	events := make(chan chat.Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- session.Run(ctx, func(e chat.Event) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case err := <-done:
			if err != nil {
				h.Log.Error("chat stream", zap.String("conversation_id", conv.ID), zap.Error(err))
				c.SSEvent("error", gin.H{"error": err.Error()})
			}
			return false
		case e := <-events:
			c.SSEvent(string(e.Type), e)
			return true
		}
	})
}

func respondStorageErr(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		utils.Error(c, http.StatusRequestEntityTooLarge, err.Error())
	default:
		log.Error("store upload", zap.Error(err))
		utils.InternalServerError(c, "Failed to store file: "+err.Error())
	}
}
