package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"swapPay/internal/model"
)

// TransferDecoder decodes ERC20 Transfer events out of receipt logs.
type TransferDecoder struct {
	event  abi.Event
	topic0 string
}

// NewTransferDecoder builds a Transfer decoder.
func NewTransferDecoder() (*TransferDecoder, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	event, ok := parsed.Events["Transfer"]
	if !ok {
		return nil, fmt.Errorf("erc20 abi has no Transfer event")
	}
	return &TransferDecoder{event: event, topic0: strings.ToLower(event.ID.Hex())}, nil
}

// CanDecode checks if the topic0 is the Transfer signature.
func (d *TransferDecoder) CanDecode(topic0 string) bool {
	return topic0 != "" && strings.ToLower(topic0) == d.topic0
}

// Decode converts a LogRecord into a TransferEvent.
func (d *TransferDecoder) Decode(log model.LogRecord) (model.TransferEvent, error) {
	if len(log.Topics) == 0 {
		return model.TransferEvent{}, fmt.Errorf("missing topics")
	}
	if !d.CanDecode(log.Topics[0]) {
		return model.TransferEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return model.TransferEvent{}, fmt.Errorf("invalid token address: %s", log.Address)
	}

	indexedTopics, err := parseIndexedTopics(d.event, log.Topics)
	if err != nil {
		return model.TransferEvent{}, err
	}

	var indexed struct {
		From common.Address
		To   common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.event.Inputs), indexedTopics); err != nil {
		return model.TransferEvent{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(d.event, log.Data)
	if err != nil {
		return model.TransferEvent{}, err
	}
	if len(values) != 1 {
		return model.TransferEvent{}, fmt.Errorf("unexpected transfer values: %d", len(values))
	}
	value, err := asBigInt(values[0])
	if err != nil {
		return model.TransferEvent{}, err
	}

	return model.TransferEvent{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Token:       common.HexToAddress(log.Address).Hex(),
		From:        indexed.From.Hex(),
		To:          indexed.To.Hex(),
		Value:       value.String(),
	}, nil
}

// DecodeReceipt decodes every Transfer log in a receipt. Logs with other
// signatures are skipped; Transfer logs that fail to decode are reported.
func (d *TransferDecoder) DecodeReceipt(chainID uint64, receipt *types.Receipt, timestamp uint64) ([]model.TransferEvent, []model.DecodeError) {
	if receipt == nil {
		return nil, nil
	}
	var events []model.TransferEvent
	var failures []model.DecodeError
	for _, log := range receipt.Logs {
		if log == nil {
			continue
		}
		record := BuildLogRecord(chainID, *log, timestamp)
		if len(record.Topics) == 0 || !d.CanDecode(record.Topics[0]) {
			continue
		}
		event, err := d.Decode(record)
		if err != nil {
			failures = append(failures, model.DecodeError{
				TxHash:   record.TxHash,
				LogIndex: record.LogIndex,
				Address:  record.Address,
				Topic0:   record.Topics[0],
				Error:    err.Error(),
			})
			continue
		}
		events = append(events, event)
	}
	return events, failures
}

// BuildLogRecord normalizes a go-ethereum log.
func BuildLogRecord(chainID uint64, log types.Log, timestamp uint64) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
	}
}

// SumTransfers totals the value moved for token from one address to another.
func SumTransfers(events []model.TransferEvent, token, from, to common.Address) *big.Int {
	total := new(big.Int)
	for _, event := range events {
		if common.HexToAddress(event.Token) != token {
			continue
		}
		if common.HexToAddress(event.From) != from || common.HexToAddress(event.To) != to {
			continue
		}
		value, ok := new(big.Int).SetString(event.Value, 10)
		if !ok {
			continue
		}
		total.Add(total, value)
	}
	return total
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
