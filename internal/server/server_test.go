package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cococomm/steerd/internal/server"
	"github.com/cococomm/steerd/internal/steering"
)

type noopActuators struct{}

func (noopActuators) BlacklistAdd(net.HardwareAddr)                                 {}
func (noopActuators) BlacklistRemove(net.HardwareAddr)                              {}
func (noopActuators) Disassociate(net.HardwareAddr)                                 {}
func (noopActuators) BSSTransitionRequest(net.HardwareAddr, net.HardwareAddr, uint8) {}
func (noopActuators) SupportsBSSTransition(net.HardwareAddr) bool                    { return false }

type noopTransport struct{}

func (noopTransport) Send(net.HardwareAddr, []byte) error { return nil }

func newTestContext(t *testing.T) (*steering.Context, func()) {
	t.Helper()

	bssid, err := net.ParseMAC("02:00:00:00:00:01")
	if err != nil {
		t.Fatalf("parse bssid: %v", err)
	}

	sc := steering.NewContext(steering.Config{BSSID: bssid, Mode: steering.ModeSuggest}, noopTransport{}, noopActuators{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sc.Run(ctx)
		close(done)
	}()

	return sc, func() {
		cancel()
		<-done
	}
}

func TestListClientsEmpty(t *testing.T) {
	t.Parallel()

	sc, stop := newTestContext(t)
	defer stop()

	h := server.New(sc, discardLogger()).Handler()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/clients")
	if err != nil {
		t.Fatalf("GET /clients: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var clients []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&clients); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(clients) != 0 {
		t.Errorf("clients = %v, want empty", clients)
	}
}

func TestGetClientAfterAssociate(t *testing.T) {
	t.Parallel()

	sc, stop := newTestContext(t)
	defer stop()

	sta, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	sc.OnAssociate(sta, -40)

	// Give the event loop a moment to process.
	time.Sleep(20 * time.Millisecond)

	h := server.New(sc, discardLogger()).Handler()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/clients/" + sta.String())
	if err != nil {
		t.Fatalf("GET /clients/{mac}: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var view map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view["state"] != "Associated" {
		t.Errorf("state = %v, want Associated", view["state"])
	}
}

func TestGetClientNotFound(t *testing.T) {
	t.Parallel()

	sc, stop := newTestContext(t)
	defer stop()

	h := server.New(sc, discardLogger()).Handler()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/clients/11:22:33:44:55:66")
	if err != nil {
		t.Fatalf("GET /clients/{mac}: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSetModeInvalid(t *testing.T) {
	t.Parallel()

	sc, stop := newTestContext(t)
	defer stop()

	h := server.New(sc, discardLogger()).Handler()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mode", "application/json", jsonBody(`{"mode":"bogus"}`))
	if err != nil {
		t.Fatalf("POST /mode: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSetModeValid(t *testing.T) {
	t.Parallel()

	sc, stop := newTestContext(t)
	defer stop()

	h := server.New(sc, discardLogger()).Handler()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mode", "application/json", jsonBody(`{"mode":"force"}`))
	if err != nil {
		t.Fatalf("POST /mode: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}
