package responseformat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	Name  string  `json:"name" msgpack:"name"`
	Value float64 `json:"value" msgpack:"value"`
}

func TestWriteResponseJSON(t *testing.T) {
	f := NewFormatter()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)

	require.NoError(t, f.WriteResponse(rec, req, http.StatusCreated, payload{Name: "tau1", Value: 299}))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"name":"tau1","value":299}`, rec.Body.String())
}

func TestWriteResponseMsgPack(t *testing.T) {
	f := NewFormatter()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?format=msgpack", nil)

	require.NoError(t, f.WriteResponse(rec, req, http.StatusOK, payload{Name: "tau2", Value: 599}))
	assert.Equal(t, MsgPackContentType, rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "tau2", got["name"])
}

func TestWriteRawMsgPack(t *testing.T) {
	f := NewFormatter()
	blob, err := msgpack.Marshal(payload{Name: "sigma", Value: 0.5})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/trace?format=msgpack", nil)
	require.NoError(t, f.WriteRawMsgPack(rec, req, blob, &payload{}))
	assert.Equal(t, blob, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/trace", nil)
	require.NoError(t, f.WriteRawMsgPack(rec, req, blob, &payload{}))
	assert.JSONEq(t, `{"name":"sigma","value":0.5}`, rec.Body.String())
}

func TestDecodeRequest(t *testing.T) {
	f := NewFormatter()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","value":1}`))
	var p payload
	require.NoError(t, f.DecodeRequest(req, &p))
	assert.Equal(t, payload{Name: "a", Value: 1}, p)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","bogus":1}`))
	assert.Error(t, f.DecodeRequest(req, &payload{}))

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	require.NoError(t, enc.Encode(payload{Name: "b", Value: 2}))
	req = httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", MsgPackContentType)
	p = payload{}
	require.NoError(t, f.DecodeRequest(req, &p))
	assert.Equal(t, payload{Name: "b", Value: 2}, p)

	var errBody map[string]string
	rec := httptest.NewRecorder()
	require.NoError(t, f.WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusNotFound, "run not found"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "run not found", errBody["error"])
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
