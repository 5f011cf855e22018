package config

import (
	"errors"
	"testing"

	"github.com/slipspeak/slipspeak/pkg/provider/stt"
	sttmock "github.com/slipspeak/slipspeak/pkg/provider/stt/mock"
)

func TestRegistry_CreateSTT(t *testing.T) {
	reg := NewRegistry()

	var gotEntry ProviderEntry
	reg.RegisterSTT("mock", func(entry ProviderEntry) (stt.Provider, error) {
		gotEntry = entry
		return &sttmock.Provider{}, nil
	})

	p, err := reg.CreateSTT(ProviderEntry{Name: "mock", Model: "tiny"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p == nil {
		t.Fatal("CreateSTT returned nil provider")
	}
	if gotEntry.Model != "tiny" {
		t.Errorf("factory received model %q, want %q", gotEntry.Model, "tiny")
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.CreateSTT(ProviderEntry{Name: "deepgram"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	reg := NewRegistry()

	first := &sttmock.Provider{}
	second := &sttmock.Provider{}
	reg.RegisterSTT("mock", func(ProviderEntry) (stt.Provider, error) { return first, nil })
	reg.RegisterSTT("mock", func(ProviderEntry) (stt.Provider, error) { return second, nil })

	p, err := reg.CreateSTT(ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p != second {
		t.Error("later registration did not overwrite the earlier one")
	}
}

func TestRegistry_FactoryErrorPropagates(t *testing.T) {
	reg := NewRegistry()
	wantErr := errors.New("model file missing")
	reg.RegisterSTT("whisper", func(ProviderEntry) (stt.Provider, error) { return nil, wantErr })

	_, err := reg.CreateSTT(ProviderEntry{Name: "whisper"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
