package muxdaemon

import (
	"context"
	"testing"

	"github.com/rubydx/sorbet-mux/src/mux/factory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"go.lsp.dev/jsonrpc2"
)

func TestHandleReq(t *testing.T) {
	ctx := context.Background()
	m := jsonRPCRouter{stats: tally.NoopScope}

	request, _ := jsonrpc2.NewCall(jsonrpc2.NewNumberID(5), "sampleMethod", []string{"val1", "val2"})
	err := m.HandleReq(ctx, newMockReplier(), request)
	assert.Error(t, err)
}

func TestHandleReqCountsMethods(t *testing.T) {
	ctx := context.Background()
	testScope := tally.NewTestScope("testing", make(map[string]string))
	m := jsonRPCRouter{stats: testScope.SubScope("json_rpc")}

	request, _ := jsonrpc2.NewCall(jsonrpc2.NewNumberID(5), "sampleMethod", nil)
	for i := 0; i < 3; i++ {
		m.HandleReq(ctx, newMockReplier(), request)
	}

	counters := testScope.Snapshot().Counters()
	key := "testing.json_rpc.received+method=sampleMethod"
	require.Contains(t, counters, key)
	assert.Equal(t, int64(3), counters[key].Value())
}

func TestUUID(t *testing.T) {
	sampleUUID := factory.UUID()
	m := jsonRPCRouter{uuid: sampleUUID}
	assert.Equal(t, sampleUUID, m.UUID())
}
