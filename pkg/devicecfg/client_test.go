package devicecfg

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func serve(t *testing.T, status int, body string) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ParamsPath {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	host, port, _ := net.SplitHostPort(srv.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return New(p, time.Second), host
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    Identity
		wantErr bool
	}{
		{"dwarf 3", http.StatusOK, `{"code":0,"data":{"id":2,"name":"DWARF 3"}}`, Identity{ID: 2, Name: "DWARF 3"}, false},
		{"missing data", http.StatusOK, `{"code":0}`, Identity{}, true},
		{"bad json", http.StatusOK, `{`, Identity{}, true},
		{"server error", http.StatusInternalServerError, ``, Identity{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, host := serve(t, tt.status, tt.body)
			got, err := c.Fetch(context.Background(), host)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fetch() err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Fetch() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFetch_NoData(t *testing.T) {
	c, host := serve(t, http.StatusOK, `{"data":null}`)
	if _, err := c.Fetch(context.Background(), host); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestURL(t *testing.T) {
	if got := New(0, time.Second).URL("192.168.88.1"); got != "http://192.168.88.1:8082/getDefaultParamsConfig" {
		t.Errorf("URL() = %s", got)
	}
}
