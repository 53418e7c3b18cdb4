package fetcher

import (
	"io"
	"net/url"
	"strings"

	"github.com/voyagen/mbient/internal/models"
)

const (
	extinfPrefix  = "#EXTINF:"
	streamPrefix  = "http"
	tvgLogoMarker = `tvg-logo="`
)

// Parser turns M3U playlist text into channels.
// FallbackHost ("host:port") is used to synthesize a logo URL for entries that
// have a title but no tvg-logo. Leave it empty to disable synthesis.
type Parser struct {
	FallbackHost string
}

// pending holds metadata from the most recent #EXTINF line not yet consumed by a stream URL.
type pending struct {
	title string
	logo  string
}

// Parse parses an M3U playlist. It never fails: lines it does not understand are skipped.
func (p Parser) Parse(text string) []models.Channel {
	channels, _ := p.ParseReader(strings.NewReader(text))
	return channels
}

// ParseReader parses an M3U playlist from r. Lines of any length are accepted;
// the only errors are read errors from r.
func (p Parser) ParseReader(r io.Reader) ([]models.Channel, error) {
	var channels []models.Channel
	lines := newLineReader(r)

	var cur pending
	for {
		line, err := lines.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return channels, err
		}

		switch {
		case strings.HasPrefix(line, extinfPrefix):
			p.applyEXTINF(&cur, line)
		case strings.HasPrefix(line, streamPrefix):
			channels = append(channels, models.Channel{
				StreamURL: strings.TrimSpace(line),
				Title:     cur.title,
				LogoURL:   cur.logo,
			})
			cur = pending{}
		}
	}
	// Metadata left in cur has no stream URL and is dropped.
	return channels, nil
}

// applyEXTINF updates cur from a metadata line. Fields the line does not carry keep their prior value.
func (p Parser) applyEXTINF(cur *pending, line string) {
	rest := strings.TrimPrefix(line, extinfPrefix)
	if _, title, ok := strings.Cut(rest, ","); ok {
		cur.title = strings.TrimSpace(title)
	}
	if logo, ok := tvgLogo(line); ok {
		cur.logo = normalizeLogo(logo)
	}
	if cur.logo == "" && cur.title != "" {
		cur.logo = p.fallbackLogo(cur.title)
	}
}

// tvgLogo returns the raw tvg-logo value. ok is false when the attribute or its closing quote is missing.
func tvgLogo(line string) (string, bool) {
	i := strings.Index(line, tvgLogoMarker)
	if i < 0 {
		return "", false
	}
	rest := line[i+len(tvgLogoMarker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// normalizeLogo keeps scheme, host and path, dropping query, fragment and userinfo.
// Values that do not parse as a URL are returned unchanged.
func normalizeLogo(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	clean := url.URL{
		Scheme:  u.Scheme,
		Opaque:  u.Opaque,
		Host:    u.Host,
		Path:    u.Path,
		RawPath: u.RawPath,
	}
	return clean.String()
}

func (p Parser) fallbackLogo(title string) string {
	if p.FallbackHost == "" {
		return ""
	}
	return "http://" + p.FallbackHost + "/" + strings.ReplaceAll(title, " ", "_") + ".png"
}
