package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"swapPay/internal/model"
)

func TestJsonlStorageAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "payments.jsonl")
	sink := NewJsonlStorage(path)

	first := model.SwapResult{Kind: model.KindSwap, TxHash: "0x01", AmountIn: "2.02", AmountOut: "1"}
	second := model.SwapResult{Kind: model.KindDeposit, TxHash: "0x02", AmountIn: "5", AmountOut: "5"}

	if err := sink.PutResult(context.Background(), first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := sink.PutResult(context.Background(), second); err != nil {
		t.Fatalf("put second: %v", err)
	}

	got, err := ReadResults(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []model.SwapResult{first, second}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("journal mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestReadResultsMissingFile(t *testing.T) {
	got, err := ReadResults(filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil || got != nil {
		t.Fatalf("expected empty journal, got %v %v", got, err)
	}
}

func TestReadResultsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{\"tx_hash\":\"0x01\"}\nnot json\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadResults(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

type failingSink struct{ err error }

func (f failingSink) PutResult(context.Context, model.SwapResult) error { return f.err }

func TestFanoutJoinsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.jsonl")
	boom := errors.New("boom")
	sinks := Fanout{NewJsonlStorage(path), nil, failingSink{err: boom}}

	err := sinks.PutResult(context.Background(), model.SwapResult{TxHash: "0x01"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}

	got, err := ReadResults(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("healthy sink should still be written, got %d", len(got))
	}
}
