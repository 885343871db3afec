package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// SortOrder txlist 排序方向
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Transaction 交易数据模型（Etherscan txlist 接口返回的单行）
type Transaction struct {
	Hash         string `json:"hash,omitempty"`
	BlockNumber  string `json:"blockNumber,omitempty"`
	TimeStamp    string `json:"timeStamp"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value,omitempty"`
	FunctionName string `json:"functionName,omitempty"`
	FromTag      string `json:"fromTag,omitempty"`
	ToTag        string `json:"toTag,omitempty"`
}

// UnmarshalJSON 宽松解析：数值字段按原文本保存，null 视为空，其余非字符串值忽略
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*t = Transaction{
		Hash:         looseString(fields["hash"]),
		BlockNumber:  looseString(fields["blockNumber"]),
		TimeStamp:    looseString(fields["timeStamp"]),
		From:         looseString(fields["from"]),
		To:           looseString(fields["to"]),
		Value:        looseString(fields["value"]),
		FunctionName: looseString(fields["functionName"]),
		FromTag:      looseString(fields["fromTag"]),
		ToTag:        looseString(fields["toTag"]),
	}
	return nil
}

func looseString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch c := trimmed[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s
	case c == '-' || (c >= '0' && c <= '9'):
		return string(trimmed)
	default:
		return ""
	}
}

// UnixSeconds 解析时间戳，空值或无法解析时返回 0
func (t *Transaction) UnixSeconds() int64 {
	ts := strings.TrimSpace(t.TimeStamp)
	if ts == "" {
		return 0
	}
	if v, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return v
	}
	// 部分网关返回浮点格式
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// Time 交易时间（UTC）
func (t *Transaction) Time() time.Time {
	return time.Unix(t.UnixSeconds(), 0).UTC()
}

// Day 交易所在的 UTC 日期，格式 YYYY-MM-DD
func (t *Transaction) Day() string {
	return t.Time().Format("2006-01-02")
}

// SenderKey 小写的发送地址
func (t *Transaction) SenderKey() string {
	return strings.ToLower(t.From)
}

// ReceiverKey 小写的接收地址
func (t *Transaction) ReceiverKey() string {
	return strings.ToLower(t.To)
}

// Labels 标签与方法名拼接，用于交易所启发式匹配
func (t *Transaction) Labels() string {
	return t.ToTag + t.FromTag + t.FunctionName
}

// TxListResponse txlist 接口响应
type TxListResponse struct {
	Status  string          `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result"`
}

// Transactions 解析 result 字段，非数组时返回空列表。
// 逐行解析，非对象的行被跳过，不影响其他行
func (r *TxListResponse) Transactions() []Transaction {
	raw := strings.TrimSpace(string(r.Result))
	if !strings.HasPrefix(raw, "[") {
		return []Transaction{}
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(r.Result, &rows); err != nil {
		return []Transaction{}
	}
	txs := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		if b := bytes.TrimSpace(row); len(b) == 0 || b[0] != '{' {
			continue
		}
		var tx Transaction
		if err := json.Unmarshal(row, &tx); err != nil {
			continue
		}
		txs = append(txs, tx)
	}
	return txs
}
