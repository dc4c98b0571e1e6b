package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// OrdnetPage renders a minimal dictionary page with one pronunciation
func OrdnetPage(soundID, href string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><body><div class="artikel">
<span class="lydskrift"><img src="/ddo/grafik/speaker.gif" alt="Lyt" onclick="playSound('%s')" />
<a id="%s_fallback" href="%s">Hent lyd</a></span>
</div></body></html>`, soundID, soundID, href)
}

// NoResultPage is served for words the dictionary does not know
const NoResultPage = `<html><body><div class="searchResultBox">Der er ingen resultater</div></body></html>`

// FakeOrdnet serves dictionary pages, audio files and the OpenAI speech
// endpoint. Known words:
//
//	hus    page with a working mp3 link
//	hygge  page whose mp3 link returns 404
//	fejl   page request fails with 500
//
// Every other word gets the no-result page.
type FakeOrdnet struct {
	*httptest.Server
	Pages    atomic.Int32
	Audio    atomic.Int32
	Speeches atomic.Int32
}

// NewFakeOrdnet starts the server, it is closed when the test ends
func NewFakeOrdnet(t *testing.T) *FakeOrdnet {
	t.Helper()

	f := &FakeOrdnet{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ddo/ordbog", func(w http.ResponseWriter, r *http.Request) {
		f.Pages.Add(1)
		switch r.URL.Query().Get("query") {
		case "hus":
			fmt.Fprint(w, OrdnetPage("11019540_1", "/mp3/11019/11019540_1.mp3"))
		case "hygge":
			fmt.Fprint(w, OrdnetPage("20022_1", "/mp3/missing.mp3"))
		case "fejl":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprint(w, NoResultPage)
		}
	})
	mux.HandleFunc("/mp3/11019/11019540_1.mp3", func(w http.ResponseWriter, r *http.Request) {
		f.Audio.Add(1)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(FakeMP3)
	})
	mux.HandleFunc("/mp3/missing.mp3", func(w http.ResponseWriter, r *http.Request) {
		f.Audio.Add(1)
		http.NotFound(w, r)
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		f.Speeches.Add(1)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(FakeMP3)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// LookupURL is the base URL to configure the page fetcher with
func (f *FakeOrdnet) LookupURL() string {
	return f.URL + "/ddo/ordbog?query="
}

// Requests returns the number of dictionary page and audio requests
func (f *FakeOrdnet) Requests() int32 {
	return f.Pages.Load() + f.Audio.Load()
}
