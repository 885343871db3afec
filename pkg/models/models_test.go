package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlag_Truthiness(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`null`, false},
		{`1`, true},
		{`0`, false},
		{`-0.5`, true},
		{`"yes"`, true},
		{`""`, false},
		{`{}`, true},
		{`[]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var res SanctionsResult
			require.NoError(t, json.Unmarshal([]byte(`{"hit":`+tt.raw+`}`), &res))
			assert.Equal(t, tt.want, bool(res.Hit))
		})
	}

	var missing SanctionsResult
	require.NoError(t, json.Unmarshal([]byte(`{}`), &missing))
	assert.False(t, bool(missing.Hit))
}

func TestRenderResult_LenientUnmarshal(t *testing.T) {
	var r RenderResult
	require.NoError(t, json.Unmarshal([]byte(`{"address":"0xA","risk_score":"high","score":70,"block":1,"sanctionHits":""}`), &r))

	assert.Equal(t, "0xA", r.Address)
	assert.Nil(t, r.RiskScore)
	require.NotNil(t, r.Score)
	assert.Equal(t, 70.0, *r.Score)
	assert.True(t, r.Block)
	assert.False(t, r.SanctionHits)

	require.NoError(t, json.Unmarshal([]byte(`{"address":42,"risk_score":null}`), &r))
	assert.Empty(t, r.Address)
	assert.Nil(t, r.RiskScore)
	assert.Nil(t, r.Score)

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
}

func TestTransaction_Timestamps(t *testing.T) {
	tx := Transaction{TimeStamp: "1714521600"}
	assert.Equal(t, int64(1714521600), tx.UnixSeconds())
	assert.Equal(t, "2024-05-01", tx.Day())

	assert.Equal(t, int64(1714521600), (&Transaction{TimeStamp: " 1714521600.9 "}).UnixSeconds())
	assert.Equal(t, int64(0), (&Transaction{}).UnixSeconds())

	bad := Transaction{TimeStamp: "not-a-time"}
	assert.Equal(t, int64(0), bad.UnixSeconds())
	assert.Equal(t, "1970-01-01", bad.Day())
}

func TestTransaction_Keys(t *testing.T) {
	tx := Transaction{From: "0xABC", To: "0xDeF", ToTag: "Binance", FromTag: "", FunctionName: "transfer"}
	assert.Equal(t, "0xabc", tx.SenderKey())
	assert.Equal(t, "0xdef", tx.ReceiverKey())
	assert.Equal(t, "Binancetransfer", tx.Labels())
}

func TestTxListResponse_Transactions(t *testing.T) {
	var resp TxListResponse
	require.NoError(t, json.Unmarshal([]byte(`{"status":"1","result":[{"from":"0xa","to":"0xb","timeStamp":"1"}]}`), &resp))
	txs := resp.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "0xb", txs[0].To)

	require.NoError(t, json.Unmarshal([]byte(`{"status":"0","result":"Max rate limit reached"}`), &resp))
	assert.Empty(t, resp.Transactions())
	assert.NotNil(t, resp.Transactions())

	require.NoError(t, json.Unmarshal([]byte(`{"status":"0"}`), &resp))
	assert.Empty(t, resp.Transactions())
}

func TestTxListResponse_MixedRowTypes(t *testing.T) {
	var resp TxListResponse
	require.NoError(t, json.Unmarshal([]byte(`{"result":[`+
		`{"from":"0xb","to":"0xa","timeStamp":"1700000000","toTag":"Binance"},`+
		`{"from":"0xc","to":"0xa","timeStamp":1700000100,"value":1e18,"blockNumber":null},`+
		`{"from":{"nested":true},"to":"0xa","timeStamp":true},`+
		`null,42]}`), &resp))

	txs := resp.Transactions()
	require.Len(t, txs, 3)
	assert.Equal(t, int64(1700000000), txs[0].UnixSeconds())
	assert.Equal(t, "Binance", txs[0].ToTag)

	assert.Equal(t, "1700000100", txs[1].TimeStamp)
	assert.Equal(t, int64(1700000100), txs[1].UnixSeconds())
	assert.Equal(t, "1e18", txs[1].Value)
	assert.Empty(t, txs[1].BlockNumber)

	assert.Empty(t, txs[2].From)
	assert.Equal(t, "0xa", txs[2].To)
	assert.Equal(t, int64(0), txs[2].UnixSeconds())
}
