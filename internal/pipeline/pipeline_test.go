package pipeline

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/framectl/internal/secframe"
	"github.com/danmuck/framectl/internal/secframe/gcm"
	"github.com/danmuck/framectl/internal/testutil/testlog"
)

func pipePair(t *testing.T, clientKey, serverKey []byte) (*Pipeline, *Pipeline) {
	t.Helper()
	log := testlog.Start(t)
	cConn, sConn := net.Pipe()
	t.Cleanup(func() {
		cConn.Close()
		sConn.Close()
	})

	clientProt, err := gcm.New(clientKey, true, gcm.DefaultLimits())
	if err != nil {
		t.Fatalf("client protector: %v", err)
	}
	serverProt, err := gcm.New(serverKey, false, gcm.DefaultLimits())
	if err != nil {
		t.Fatalf("server protector: %v", err)
	}
	client := New(cConn, clientProt, Config{}, log)
	server := New(sConn, serverProt, Config{}, log)
	return client, server
}

func TestEchoOverPipe(t *testing.T) {
	key := bytes.Repeat([]byte{0x17}, 32)
	client, server := pipePair(t, key, key)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Serve(func(frame []byte) error {
			return server.Send(frame)
		})
	}()

	if err := client.Send([]byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}

	errStop := errors.New("stop")
	var got []byte
	err := client.Serve(func(frame []byte) error {
		got = append([]byte(nil), frame...)
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("client serve err=%v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("echo got %q", got)
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Fatalf("server serve err=%v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop after client close")
	}
}

func TestKeyMismatchFailsDecode(t *testing.T) {
	clientKey := bytes.Repeat([]byte{0x01}, 32)
	serverKey := bytes.Repeat([]byte{0x02}, 32)
	client, server := pipePair(t, clientKey, serverKey)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Serve(func([]byte) error { return nil })
	}()

	if err := client.Send([]byte("garbled")); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case err := <-serverDone:
		var protoErr *secframe.ProtocolError
		if !errors.As(err, &protoErr) {
			t.Fatalf("server err=%v want ProtocolError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not fail on undecodable input")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	key := bytes.Repeat([]byte{0x17}, 32)
	client, _ := pipePair(t, key, key)

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := client.Send([]byte("late")); !errors.Is(err, secframe.ErrNotReady) {
		t.Fatalf("send after close err=%v want NotReady", err)
	}
}
