package router_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"smshub/internal/channel/router"
	"smshub/internal/domain"
	"smshub/internal/ports"
)

type fakeChannel struct {
	result ports.ChannelResult
	called bool
}

func (f *fakeChannel) Send(ctx context.Context, event domain.QueuedEvent) ports.ChannelResult {
	f.called = true
	return f.result
}

func TestRouterDispatchesByChannelType(t *testing.T) {
	httpCh := &fakeChannel{result: ports.ChannelResult{OK: true, ExternalID: "http-1"}}
	smppCh := &fakeChannel{result: ports.ChannelResult{OK: true, ExternalID: "smpp-1"}}
	r := router.New(httpCh, smppCh)

	result := r.Send(context.Background(), domain.QueuedEvent{ChannelType: domain.ChannelHTTP})
	assert.True(t, httpCh.called)
	assert.False(t, smppCh.called)
	assert.Equal(t, "http-1", result.ExternalID)
}

func TestRouterNormalizesCase(t *testing.T) {
	httpCh := &fakeChannel{result: ports.ChannelResult{OK: true}}
	smppCh := &fakeChannel{}
	r := router.New(httpCh, smppCh)

	r.Send(context.Background(), domain.QueuedEvent{ChannelType: "http"})
	assert.True(t, httpCh.called)
}

func TestRouterUnknownChannelIsPermanentFailure(t *testing.T) {
	r := router.New(&fakeChannel{}, &fakeChannel{})

	result := r.Send(context.Background(), domain.QueuedEvent{ChannelType: "carrier-pigeon"})
	assert.False(t, result.OK)
	assert.False(t, result.Kind.Transient())
	assert.Contains(t, result.ErrorMessage, "carrier-pigeon")
}
