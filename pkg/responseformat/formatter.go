package responseformat

import (
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPackContentType is the media type of MessagePack bodies
const MsgPackContentType = "application/x-msgpack"

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// WantsMsgPack reports whether the request asked for MessagePack
func WantsMsgPack(req *http.Request) bool {
	return req.URL.Query().Get("format") == "msgpack"
}

// WriteResponse writes the response in the appropriate format based on the query parameter
// JSON is the default format. MessagePack is used when format=msgpack is specified
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any) error {
	// Always set CORS header
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if WantsMsgPack(req) {
		return f.writeMsgPack(w, status, data)
	}

	// Default to JSON format (when no format parameter or any other value)
	return f.writeJSON(w, status, data)
}

// WriteError writes {"error": msg} in the requested format
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, msg string) error {
	return f.WriteResponse(w, req, status, map[string]string{"error": msg})
}

// WriteRawMsgPack writes a pre-encoded MessagePack body as is when the client
// asked for MessagePack; otherwise it decodes the body into v and writes JSON
func (f *Formatter) WriteRawMsgPack(w http.ResponseWriter, req *http.Request, body []byte, v any) error {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if WantsMsgPack(req) {
		w.Header().Set("Content-Type", MsgPackContentType)
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(body)
		return err
	}

	if err := msgpack.Unmarshal(body, v); err != nil {
		return err
	}
	return f.writeJSON(w, http.StatusOK, v)
}

// DecodeRequest reads a JSON or MessagePack request body into v, chosen by
// Content-Type
func (f *Formatter) DecodeRequest(req *http.Request, v any) error {
	if req.Header.Get("Content-Type") == MsgPackContentType {
		dec := msgpack.NewDecoder(req.Body)
		dec.SetCustomStructTag("json")
		return dec.Decode(v)
	}
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (f *Formatter) writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func (f *Formatter) writeMsgPack(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", MsgPackContentType)
	w.WriteHeader(status)
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}
