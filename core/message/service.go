package message

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("message not found")

type (
	Repository interface {
		CreateMessage(ctx context.Context, msg Message) (Message, error)
		// QueryMessages returns the matching messages, oldest first.
		QueryMessages(ctx context.Context, filter QueryFilter) ([]Message, error)
		// MarkMessagesRead returns how many messages matched.
		MarkMessagesRead(ctx context.Context, filter QueryFilter) (int, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{repo: repo, validate: validate}
}

func (svc *Service) Send(ctx context.Context, nm NewMessage) (Message, error) {
	if err := nm.Validate(svc.validate); err != nil {
		return Message{}, err
	}
	return svc.repo.CreateMessage(ctx, Message{
		SenderID:   nm.SenderID,
		ReceiverID: nm.ReceiverID,
		Body:       nm.Body,
		CreatedAt:  time.Now().UTC(),
	})
}

// Inbox returns the messages received by a user, newest first.
func (svc *Service) Inbox(ctx context.Context, receiverID string) ([]Message, error) {
	msgs, err := svc.repo.QueryMessages(ctx, QueryFilter{ReceiverID: receiverID})
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Conversation returns the messages exchanged between two users, oldest first.
func (svc *Service) Conversation(ctx context.Context, userA, userB string) ([]Message, error) {
	return svc.repo.QueryMessages(ctx, QueryFilter{Participants: []string{userA, userB}})
}

// MarkRead marks a message received by receiverID as read.
func (svc *Service) MarkRead(ctx context.Context, receiverID, id string) error {
	count, err := svc.repo.MarkMessagesRead(ctx, QueryFilter{IDs: []string{id}, ReceiverID: receiverID})
	if err != nil {
		return errors.Wrap(err, "marking message read")
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkConversationRead marks every message sent by senderID to receiverID as read.
func (svc *Service) MarkConversationRead(ctx context.Context, senderID, receiverID string) (int, error) {
	return svc.repo.MarkMessagesRead(ctx, QueryFilter{SenderID: senderID, ReceiverID: receiverID, UnreadOnly: true})
}

// UnreadCounts returns the number of unread messages received by receiverID, per sender.
func (svc *Service) UnreadCounts(ctx context.Context, receiverID string) (map[string]int, error) {
	msgs, err := svc.repo.QueryMessages(ctx, QueryFilter{ReceiverID: receiverID, UnreadOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	counts := make(map[string]int)
	for _, msg := range msgs {
		counts[msg.SenderID]++
	}
	return counts, nil
}
