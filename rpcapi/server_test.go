package rpcapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/metrics"
	"github.com/qdrn/massa/rpcapi"
	"github.com/qdrn/massa/selector"
	"github.com/qdrn/massa/sequencer"
	"github.com/qdrn/massa/types"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func newTestServer(t *testing.T) (*rpcapi.Server, types.Address) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ThreadCount = 1

	sender := testAddr(1)
	fs := finalstate.New(cfg)
	genesisChanges := types.NewStateChanges()
	genesisChanges.Ledger.SetBalance(sender, amount.FromUnits(500))
	require.NoError(t, fs.Finalize(types.NewSlot(0, 0), genesisChanges))

	ah := activehistory.New()
	sel := selector.New(fs.Roll, cfg)
	clk := sequencer.NewClock(time.Now().Unix(), 1000, cfg.ThreadCount)
	sq := sequencer.New(fs, ah, cfg, sel, clk, metrics.New())

	return rpcapi.NewServer(sq, nil), sender
}

func callRPC(t *testing.T, s *rpcapi.Server, method string, params interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	reqBody, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  []json.RawMessage{raw},
		"id":      1,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGetFinalAndCandidateBalance(t *testing.T) {
	s, sender := newTestServer(t)

	resp := callRPC(t, s, "get_final_and_candidate_balance", map[string]string{
		"addr": sender.String(),
	})
	require.Nil(t, resp["error"])

	result := resp["result"].(map[string]interface{})
	require.Equal(t, amount.FromUnits(500).String(), result["final"])
	require.Equal(t, amount.FromUnits(500).String(), result["candidate"])
}

func TestUnknownMethodReturnsJSONRPCError(t *testing.T) {
	s, _ := newTestServer(t)
	resp := callRPC(t, s, "get_nonexistent_thing", map[string]string{})
	require.NotNil(t, resp["error"])
}

func TestGetCycleActiveRolls(t *testing.T) {
	s, _ := newTestServer(t)
	resp := callRPC(t, s, "get_cycle_active_rolls", map[string]uint64{"cycle": 0})
	require.Nil(t, resp["error"])
	_, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
}

func TestComputeOperationIdIsDeterministicAndContentSensitive(t *testing.T) {
	s, sender := newTestServer(t)

	params := map[string]interface{}{
		"sender":        sender.String(),
		"fee":           "1000000000",
		"max_gas":       10,
		"expire_period": 5,
		"kind":          0,
		"recipient":     testAddr(2).String(),
		"amount":        "2000000000",
	}

	first := callRPC(t, s, "compute_operation_id", params)
	require.Nil(t, first["error"])
	firstID := first["result"].(map[string]interface{})["operation_id"]
	require.NotEmpty(t, firstID)

	second := callRPC(t, s, "compute_operation_id", params)
	require.Equal(t, firstID, second["result"].(map[string]interface{})["operation_id"])

	params["fee"] = "2000000000"
	third := callRPC(t, s, "compute_operation_id", params)
	require.NotEqual(t, firstID, third["result"].(map[string]interface{})["operation_id"])
}
