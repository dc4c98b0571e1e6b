package dictionary

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// playSoundPattern extracts the sound id from onclick="playSound('...')"
var playSoundPattern = regexp.MustCompile(`playSound\('(.*?)'\)`)

// LocateAudio finds the pronunciation MP3 of the primary sense on a DDO page.
//
// Every pronunciation on the page is a speaker.gif image whose onclick
// handler plays a sound id. The id's "<id>_fallback" anchor carries the MP3
// link. The first speaker with a usable fallback is the headword.
func LocateAudio(rawHTML, word, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", &AudioNotFoundError{Word: word, Reason: fmt.Sprintf("failed to parse page: %v", err)}
	}

	var audioURL string
	doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		if !strings.Contains(src, "speaker.gif") {
			return true
		}

		onclick, _ := img.Attr("onclick")
		match := playSoundPattern.FindStringSubmatch(onclick)
		if match == nil {
			return true
		}

		href := fallbackHref(doc, match[1])
		if !strings.HasSuffix(href, ".mp3") {
			return true
		}

		audioURL = resolveURL(pageURL, href)
		return false
	})

	if audioURL == "" {
		return "", &AudioNotFoundError{Word: word, Reason: "no speaker with an mp3 fallback link on page"}
	}
	return audioURL, nil
}

// fallbackHref returns the href of the first <a id="<soundID>_fallback">
func fallbackHref(doc *goquery.Document, soundID string) string {
	id := soundID + "_fallback"

	var href string
	doc.Find("a[id]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if v, _ := a.Attr("id"); v != id {
			return true
		}
		href, _ = a.Attr("href")
		href = strings.TrimSpace(href)
		return false
	})
	return href
}

// resolveURL makes href absolute relative to pageURL when possible
func resolveURL(pageURL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() || pageURL == "" {
		return href
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
