package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xaenox/bridge-bot/internal/models"
	"github.com/xaenox/bridge-bot/internal/normalize"
)

var errNotFound = errors.New("not found")

type fakeResolver struct {
	users map[string]string
}

func (f *fakeResolver) UserName(_ context.Context, id string) (string, error) {
	if name, ok := f.users[id]; ok {
		return name, nil
	}
	return "", errNotFound
}

func (f *fakeResolver) ChannelName(_ context.Context, id string) (string, error) {
	return "", errNotFound
}

func (f *fakeResolver) RoleName(_ context.Context, id string) (string, error) {
	return "", errNotFound
}

func (f *fakeResolver) GroupHandle(_ context.Context, id string) (string, error) {
	return "", errNotFound
}

func (f *fakeResolver) CustomEmoji(_ context.Context) (map[string]bool, error) {
	return nil, nil
}

type fakeOrigin struct {
	resolver *fakeResolver
	messages map[string]*models.InboundMessage
	fetchErr error
}

func (f *fakeOrigin) Resolver(string) normalize.Resolver { return f.resolver }

func (f *fakeOrigin) FetchMessage(_ context.Context, channelID, messageID string) (*models.InboundMessage, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	m, ok := f.messages[channelID+"/"+messageID]
	if !ok {
		return nil, errNotFound
	}
	cp := *m
	return &cp, nil
}

// fakeSender records sends and hands out sequential thread refs.
type fakeSender struct {
	mu    sync.Mutex
	sent  []models.OutboundMessage
	err   error
	count int
}

func (f *fakeSender) Send(_ context.Context, msg models.OutboundMessage) (models.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.SendResult{}, f.err
	}
	f.sent = append(f.sent, msg)
	f.count++
	ref := msg.ThreadRef
	if ref == "" {
		ref = fmt.Sprintf("1700000000.%06d", f.count)
	}
	return models.SendResult{ChannelID: msg.ChannelID, ThreadRef: ref}, nil
}

func (f *fakeSender) Sent() []models.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OutboundMessage(nil), f.sent...)
}

// failingStore fails every call.
type failingStore struct{}

func (failingStore) GetMapping(context.Context, string, string) (*models.ThreadMapping, error) {
	return nil, errors.New("store down")
}

func (failingStore) SaveMapping(context.Context, string, string, string, string) (*models.ThreadMapping, error) {
	return nil, errors.New("store down")
}

func (failingStore) Close() error { return nil }
