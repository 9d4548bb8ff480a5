package oracle

import (
	"context"
	"errors"
	"testing"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"
)

func newTestTransport(clientMock copilotClient) *CopilotTransport {
	return NewCopilotTransport("gpt-4o-mini", &CopilotOptions{
		NewCopilotClient: func(clientOptions *copilot.ClientOptions) copilotClient { return clientMock },
	})
}

func TestCopilotComplete(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)
	sessionMock := NewMockcopilotSession(ctrl)

	unregisterCount := 0
	unregister := func() { unregisterCount++ }
	reply := `{"action":"final","final_answer":"5"}`

	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, config *copilot.SessionConfig) (copilotSession, error) {
			require.Equal(t, "gpt-4o-mini", config.Model)
			require.NotNil(t, config.OnPermissionRequest)
			return sessionMock, nil
		})
	clientMock.EXPECT().Stop()

	sessionMock.EXPECT().On(gomock.Any()).Return(unregister)
	sessionMock.EXPECT().SendAndWait(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, options copilot.MessageOptions) (*copilot.SessionEvent, error) {
			require.Equal(t, "system\n\nuser", options.Prompt)
			return &copilot.SessionEvent{Data: copilot.Data{Content: &reply}}, nil
		})

	transport := newTestTransport(clientMock)
	got, err := transport.Complete(context.Background(), Request{System: "system", User: "user"})
	require.NoError(t, err)
	require.Equal(t, reply, got)
	require.Equal(t, 1, unregisterCount)
	require.NoError(t, transport.Close())
}

func TestCopilotComplete_FallsBackToStreamedContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)
	sessionMock := NewMockcopilotSession(ctrl)

	var handler copilot.SessionEventHandler
	streamed := `{"action":"query","sql":"SELECT 1"}`

	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(sessionMock, nil)
	sessionMock.EXPECT().On(gomock.Any()).DoAndReturn(func(h copilot.SessionEventHandler) func() {
		handler = h
		return func() {}
	})
	sessionMock.EXPECT().SendAndWait(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, options copilot.MessageOptions) (*copilot.SessionEvent, error) {
			handler(copilot.SessionEvent{Data: copilot.Data{Content: &streamed}})
			return nil, nil
		})

	got, err := newTestTransport(clientMock).Complete(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, streamed, got)
}

func TestCopilotComplete_NoContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)
	sessionMock := NewMockcopilotSession(ctrl)

	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(sessionMock, nil)
	sessionMock.EXPECT().On(gomock.Any()).Return(func() {})
	sessionMock.EXPECT().SendAndWait(gomock.Any(), gomock.Any()).Return(&copilot.SessionEvent{}, nil)

	_, err := newTestTransport(clientMock).Complete(context.Background(), Request{})
	require.ErrorContains(t, err, "no assistant message")
}

func TestCopilotComplete_StartFailureIsSticky(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)

	startErr := errors.New("cli not found")
	clientMock.EXPECT().Start(gomock.Any()).Return(startErr).Times(1)

	transport := newTestTransport(clientMock)
	for range 2 {
		_, err := transport.Complete(context.Background(), Request{})
		require.ErrorIs(t, err, startErr)
	}
}

func TestCopilotComplete_SendError(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)
	sessionMock := NewMockcopilotSession(ctrl)

	sendErr := errors.New("quota exceeded")
	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(sessionMock, nil)
	sessionMock.EXPECT().On(gomock.Any()).Return(func() {})
	sessionMock.EXPECT().SendAndWait(gomock.Any(), gomock.Any()).Return(nil, sendErr)

	_, err := newTestTransport(clientMock).Complete(context.Background(), Request{})
	require.ErrorIs(t, err, sendErr)
}

func TestCopilotComplete_ConcurrentStartsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)
	sessionMock := NewMockcopilotSession(ctrl)

	reply := `{"action":"final","final_answer":"x"}`
	clientMock.EXPECT().Start(gomock.Any()).Times(1)
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(sessionMock, nil).Times(8)
	sessionMock.EXPECT().On(gomock.Any()).Return(func() {}).Times(8)
	sessionMock.EXPECT().SendAndWait(gomock.Any(), gomock.Any()).Return(&copilot.SessionEvent{Data: copilot.Data{Content: &reply}}, nil).Times(8)

	transport := newTestTransport(clientMock)
	eg := errgroup.Group{}
	for range 8 {
		eg.Go(func() error {
			_, err := transport.Complete(context.Background(), Request{})
			return err
		})
	}
	require.NoError(t, eg.Wait())
}
