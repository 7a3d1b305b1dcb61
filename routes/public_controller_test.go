package routes

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mbolis/quick-register/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSubmissionMultipart(t *testing.T) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("first_name", "Ada"))
	require.NoError(t, w.WriteField("events", "1"))
	require.NoError(t, w.WriteField("events", "2"))
	fw, err := w.CreateFormFile("photo", "badge.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := httptest.NewRequest("POST", "/api/meetings/1/registrations", body)
	r.Header.Set("Content-Type", w.FormDataContentType())

	raw, uploads, err := decodeSubmission(r)
	require.NoError(t, err)

	assert.Equal(t, "Ada", raw["first_name"])
	assert.Equal(t, []any{"1", "2"}, raw["events"])

	require.Contains(t, uploads, "photo")
	assert.Equal(t, "badge.jpg", uploads["photo"].Filename)
	data, err := io.ReadAll(uploads["photo"].Data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))

	// every opened part hands back a closeable handle
	_, ok := uploads["photo"].Data.(io.Closer)
	assert.True(t, ok)

	closeUploads(uploads)
}

func TestDecodeSubmissionJSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/meetings/1/registrations",
		strings.NewReader(`{"first_name":"Ada","events":["1","2"]}`))
	r.Header.Set("Content-Type", "application/json")

	raw, uploads, err := decodeSubmission(r)
	require.NoError(t, err)
	assert.Nil(t, uploads)
	assert.Equal(t, "Ada", raw["first_name"])
	assert.Equal(t, []any{"1", "2"}, raw["events"])
}

type trackingReader struct {
	io.Reader
	closed bool
}

func (r *trackingReader) Close() error {
	r.closed = true
	return nil
}

func TestCloseUploads(t *testing.T) {
	tracked := &trackingReader{Reader: strings.NewReader("jpeg bytes")}
	uploads := map[string]*field.Upload{
		"photo": {Filename: "badge.jpg", Data: tracked},
		"bio":   {Filename: "bio.txt", Data: strings.NewReader("plain reader")},
	}

	closeUploads(uploads)

	assert.True(t, tracked.closed)
}
