package chatservice

import (
	"context"
	"fmt"
	"time"

	"github.com/tourdesk/tourdesk/chatstore"
	"github.com/tourdesk/tourdesk/libtracker"
)

type activityTrackerDecorator struct {
	service Service
	tracker libtracker.ActivityTracker
}

func (d *activityTrackerDecorator) CreateConversation(ctx context.Context, conv *chatstore.Conversation) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"create",
		"conversation",
		"title", conv.Title,
		"createdBy", conv.CreatedBy,
	)
	defer endFn()

	err := d.service.CreateConversation(ctx, conv)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(conv.ID, map[string]interface{}{
			"title":     conv.Title,
			"createdBy": conv.CreatedBy,
		})
	}

	return err
}

func (d *activityTrackerDecorator) GetConversation(ctx context.Context, id string) (*chatstore.Conversation, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"read",
		"conversation",
		"conversationID", id,
	)
	defer endFn()

	conv, err := d.service.GetConversation(ctx, id)
	if err != nil {
		reportErrFn(err)
	}

	return conv, err
}

func (d *activityTrackerDecorator) ListConversations(ctx context.Context, updatedAtCursor *time.Time, limit int) ([]ConversationSummary, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"conversations",
		"cursor", fmt.Sprintf("%v", updatedAtCursor),
		"limit", fmt.Sprintf("%d", limit),
	)
	defer endFn()

	summaries, err := d.service.ListConversations(ctx, updatedAtCursor, limit)
	if err != nil {
		reportErrFn(err)
	}

	return summaries, err
}

func (d *activityTrackerDecorator) DeleteConversation(ctx context.Context, id string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"delete",
		"conversation",
		"conversationID", id,
	)
	defer endFn()

	err := d.service.DeleteConversation(ctx, id)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(id, nil)
	}

	return err
}

func (d *activityTrackerDecorator) ListMessages(ctx context.Context, conversationID string) ([]*chatstore.Message, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"list",
		"messages",
		"conversationID", conversationID,
	)
	defer endFn()

	msgs, err := d.service.ListMessages(ctx, conversationID)
	if err != nil {
		reportErrFn(err)
	}

	return msgs, err
}

func (d *activityTrackerDecorator) AppendMessage(ctx context.Context, msg *chatstore.Message) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"create",
		"message",
		"conversationID", msg.ConversationID,
		"senderID", msg.SenderID,
	)
	defer endFn()

	err := d.service.AppendMessage(ctx, msg)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(msg.ID, map[string]interface{}{
			"conversationID": msg.ConversationID,
			"senderID":       msg.SenderID,
			"hasFile":        msg.FileID != "",
		})
	}

	return err
}

func (d *activityTrackerDecorator) EditMessage(ctx context.Context, conversationID, messageID, text string) (*chatstore.Message, error) {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"update",
		"message",
		"conversationID", conversationID,
		"messageID", messageID,
	)
	defer endFn()

	msg, err := d.service.EditMessage(ctx, conversationID, messageID, text)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(messageID, map[string]interface{}{
			"conversationID": conversationID,
			"edited":         true,
		})
	}

	return msg, err
}

func (d *activityTrackerDecorator) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"delete",
		"message",
		"conversationID", conversationID,
		"messageID", messageID,
	)
	defer endFn()

	err := d.service.DeleteMessage(ctx, conversationID, messageID)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(messageID, nil)
	}

	return err
}

func (d *activityTrackerDecorator) UploadFile(ctx context.Context, file *chatstore.File) error {
	reportErrFn, reportChangeFn, endFn := d.tracker.Start(
		ctx,
		"create",
		"file",
		"name", file.Name,
		"contentType", file.ContentType,
	)
	defer endFn()

	err := d.service.UploadFile(ctx, file)
	if err != nil {
		reportErrFn(err)
	} else {
		reportChangeFn(file.ID, map[string]interface{}{
			"name": file.Name,
			"size": file.Size,
		})
	}

	return err
}

func (d *activityTrackerDecorator) GetFile(ctx context.Context, id string) (*chatstore.File, error) {
	reportErrFn, _, endFn := d.tracker.Start(
		ctx,
		"read",
		"file",
		"fileID", id,
	)
	defer endFn()

	file, err := d.service.GetFile(ctx, id)
	if err != nil {
		reportErrFn(err)
	}

	return file, err
}

func WithActivityTracker(service Service, tracker libtracker.ActivityTracker) Service {
	return &activityTrackerDecorator{
		service: service,
		tracker: tracker,
	}
}

var _ Service = (*activityTrackerDecorator)(nil)
