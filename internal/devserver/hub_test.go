package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := NewHub(context.Background(), fastOptions())
	defer h.Shutdown()
	reply := make(chan *Room, 1)

	h.Inbox() <- CreateRoom{ID: "zed123", Reply: reply}
	rm1 := <-reply

	h.Inbox() <- GetRoom{ID: "zed123", Reply: reply}
	rm2 := <-reply

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected same room pointer")
	}

	// taken ids are refused
	h.Inbox() <- CreateRoom{ID: "zed123", Reply: reply}
	assert.Nil(t, <-reply)
}

func TestHub_Sessions(t *testing.T) {
	h := NewHub(context.Background(), fastOptions())
	defer h.Shutdown()

	rm, err := h.Create()
	require.NoError(t, err)
	assert.Len(t, rm.ID(), 6)
	assert.Same(t, rm, h.Room(rm.ID()))

	assert.Nil(t, h.session("tok-a"))
	h.bind("tok-a", rm.ID())
	assert.Same(t, rm, h.session("tok-a"))

	h.Inbox() <- RemoveRoom{ID: rm.ID()}
	assert.Nil(t, h.Room(rm.ID()))
	assert.Nil(t, h.session("tok-a"))
	<-rm.Done()
}

func TestHub_AbandonedRoomIsRemoved(t *testing.T) {
	h := NewHub(context.Background(), fastOptions())
	defer h.Shutdown()

	rm, err := h.Create()
	require.NoError(t, err)
	a := join(t, rm, "tok-a", "alice")
	h.bind("tok-a", rm.ID())

	rm.Inbox() <- Detach{Token: "tok-a", Outbox: a}
	select {
	case <-rm.Done():
	case <-time.After(time.Second):
		t.Fatalf("room outlived its last player")
	}
	assert.Nil(t, h.Room(rm.ID()))
	assert.Nil(t, h.session("tok-a"))
}

func TestHub_Shutdown_StopsRooms(t *testing.T) {
	h := NewHub(context.Background(), fastOptions())
	rm, err := h.Create()
	require.NoError(t, err)

	h.Shutdown()
	<-rm.Done()
	assert.Nil(t, h.Room(rm.ID()))
	_, err = h.Create()
	assert.Error(t, err)
}

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := GenerateID()
		require.NoError(t, err)
		require.Regexp(t, `^[a-z0-9]{6}$`, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestRoutes(t *testing.T) {
	h := NewHub(context.Background(), fastOptions())
	defer h.Shutdown()
	srv := httptest.NewServer(Routes(h, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/creategame", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.GreaterOrEqual(t, resp.StatusCode, 400, "plain GET is not an upgrade")
}
