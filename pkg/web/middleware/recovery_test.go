package middleware

import (
	"bufio"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/poold/pkg/core"
	"github.com/fluxorio/poold/pkg/tcp"
)

func runPanicking(t *testing.T, config RecoveryConfig) (resp *fasthttp.Response, repanicked interface{}, err error) {
	t.Helper()

	server, client := net.Pipe()
	defer client.Close()

	h := Recovery(config)(func(ctx *tcp.ConnContext) error {
		panic("handler bug")
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer server.Close()
		defer func() { repanicked = recover() }()
		err = h(&tcp.ConnContext{Context: context.Background(), Conn: server, ID: "t"})
	}()

	resp = &fasthttp.Response{}
	require.NoError(t, resp.Read(bufio.NewReader(client)))
	<-done
	return resp, repanicked, err
}

func TestRecovery_Writes500AndRepanics(t *testing.T) {
	resp, repanicked, err := runPanicking(t, RecoveryConfig{Logger: core.NewNopLogger()})

	assert.Equal(t, fasthttp.StatusInternalServerError, resp.StatusCode())
	assert.Equal(t, "handler bug", repanicked)
	assert.NoError(t, err)
}

func TestRecovery_Swallow(t *testing.T) {
	resp, repanicked, err := runPanicking(t, RecoveryConfig{Logger: core.NewNopLogger(), Swallow: true})

	assert.Equal(t, fasthttp.StatusInternalServerError, resp.StatusCode())
	assert.Nil(t, repanicked)
	assert.NoError(t, err)
}

func TestRecovery_PassesThrough(t *testing.T) {
	called := false
	h := Recovery(DefaultRecoveryConfig())(func(ctx *tcp.ConnContext) error {
		called = true
		return nil
	})
	require.NoError(t, h(&tcp.ConnContext{}))
	assert.True(t, called)
}
