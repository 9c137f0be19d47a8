package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func dialPushService(t *testing.T, srv *httptest.Server, address string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?address=" + address
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial push service: %v", err)
	}
	return conn
}

func TestWebSocketPushDelivery(t *testing.T) {
	svc := NewWebSocketPushService()
	svc.Start()
	defer svc.Stop()

	srv := httptest.NewServer(http.HandlerFunc(svc.HandleConnection))
	defer srv.Close()

	t.Run("Rejects Invalid Address", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "?address=not-a-wallet")
		assert.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Delivers Event To Connected User", func(t *testing.T) {
		conn := dialPushService(t, srv, testUserWallet)
		defer conn.Close()

		for i := 0; i < 100 && svc.ConnectionCount() == 0; i++ {
			time.Sleep(10 * time.Millisecond)
		}
		assert.Equal(t, 1, svc.ConnectionCount())

		svc.Emit(EventPaymentIntentClaimed, NotificationPayload{
			PaymentIntentID: "intent-1",
			Status:          "claimed",
			UserAddress:     testUserWallet,
		})

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg PushMessage
		err := conn.ReadJSON(&msg)
		assert.NoError(t, err)
		assert.Equal(t, EventPaymentIntentClaimed, msg.Type)
		assert.Equal(t, testUserWallet, msg.UserAddress)
	})
}

func TestWebSocketPushSurvivesDisconnectChurn(t *testing.T) {
	svc := NewWebSocketPushService()
	svc.Start()

	srv := httptest.NewServer(http.HandlerFunc(svc.HandleConnection))
	defer srv.Close()

	payload := NotificationPayload{
		PaymentIntentID: "intent-churn",
		Status:          "claimed",
		UserAddress:     testUserWallet,
		LPAddress:       testLPWallet,
	}

	// Hammer Emit from several goroutines while clients connect and drop.
	// A connection torn down between the address snapshot and the channel
	// send used to panic the emitter.
	done := make(chan struct{})
	var emitters sync.WaitGroup
	for i := 0; i < 8; i++ {
		emitters.Add(1)
		go func() {
			defer emitters.Done()
			for {
				select {
				case <-done:
					return
				default:
					svc.Emit(EventPaymentIntentClaimed, payload)
				}
			}
		}()
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		conn := dialPushService(t, srv, testUserWallet)
		conn.Close()
	}

	close(done)
	emitters.Wait()
	svc.Stop()

	assert.Equal(t, 0, svc.ConnectionCount())
}

func TestWebSocketPushStartStop(t *testing.T) {
	svc := NewWebSocketPushService()
	svc.Start()
	svc.Start()
	svc.Stop()
	svc.Stop()
	assert.Equal(t, 0, svc.ConnectionCount())
}
