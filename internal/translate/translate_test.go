package translate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-playground/assert/v2"
)

func TestTranslate(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`[[["Нефть ","Oil ",null,null],["дорожает","rises",null,null]],null,"en"]`))
	}))
	defer srv.Close()

	tr := New(srv.URL, "ru", nil)

	assert.Equal(t, "Нефть дорожает", tr.Translate(context.Background(), "Oil rises", "en"))
	assert.Equal(t, true, strings.Contains(query, "tl=ru"))
	assert.Equal(t, true, strings.Contains(query, "sl=en"))
	assert.Equal(t, true, strings.Contains(query, "client=gtx"))
}

func TestTranslateSkipsTargetLanguage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	tr := New(srv.URL, "ru", nil)

	assert.Equal(t, "Рубль", tr.Translate(context.Background(), " Рубль ", "RU"))
	assert.Equal(t, "", tr.Translate(context.Background(), "", "en"))
	assert.Equal(t, 0, calls)
}

func TestTranslateFailsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := New(srv.URL, "ru", nil)

	assert.Equal(t, "Oil rises", tr.Translate(context.Background(), "Oil rises", "en"))

	long := strings.Repeat("a", 1500)
	out := tr.Translate(context.Background(), long, "")
	assert.Equal(t, fallbackLength+3, utf8.RuneCountInString(out))
}

func TestParseResponse(t *testing.T) {
	_, err := parseResponse([]byte(`[]`))
	assert.NotEqual(t, nil, err)

	_, err = parseResponse([]byte(`not json`))
	assert.NotEqual(t, nil, err)

	out, err := parseResponse([]byte(`[[["a"],[],["b"]]]`))
	assert.Equal(t, nil, err)
	assert.Equal(t, "ab", out)
}
