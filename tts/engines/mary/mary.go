// Package mary synthesizes speech on a MaryTTS server.
package mary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/rtvoice/internal/cache"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/base"
)

// DefaultVoice is used when a request names no voice.
const DefaultVoice = "cmu-rms-hsmm"

// Provider requests WAV audio from a MaryTTS server. It cannot speak
// natively.
type Provider struct {
	*base.Base

	server  string
	client  *http.Client
	limiter *rate.Limiter
	cache   *cache.VoiceCache
}

// New creates the provider for the server in env.Config.Mary.
func New(env tts.Env) (*Provider, error) {
	cfg := env.Config.Mary
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	server, err := ServerURL(cfg.URL, cfg.Port)
	if err != nil {
		return nil, err
	}

	caps := tts.Capabilities{
		AudioFileExtension: ".wav",
		AudioFileType:      tts.AudioWAV,
		DefaultVoiceName:   DefaultVoice,
		MaxTextLength:      256000,
		Speak:              true,
		PlatformSupported:  true,
		SSML:               true,
		Online:             true,
	}
	p := &Provider{
		Base:    base.New(tts.ProviderMary, env, caps),
		server:  server,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
	}
	if cfg.CacheDir != "" {
		vc, err := cache.NewVoiceCache(cfg.CacheDir, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create voice cache: %w", err)
		}
		p.cache = vc
	}
	return p, nil
}

// Factory is the registry constructor.
func Factory(env tts.Env) (tts.Provider, error) {
	return New(env)
}

// ServerURL joins the server address and port. The scheme defaults to
// http and a trailing slash is dropped.
func ServerURL(raw string, port int) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid MaryTTS url %q", tts.ErrInvalidConfig, raw)
	}
	if u.Port() == "" && port > 0 {
		u.Host += ":" + strconv.Itoa(port)
	}
	return u.String(), nil
}

// Server returns the base URL requests are sent to.
func (p *Provider) Server() string { return p.server }

// RefreshVoices loads the voice list from the cache or from /voices.
func (p *Provider) RefreshVoices(ctx context.Context) error {
	if p.cache != nil {
		voices, err := p.cache.Get(p.server)
		if err == nil {
			p.Logger.Debug("voices loaded from cache", "server", p.server, "count", len(voices))
			p.SetVoices(voices)
			return nil
		}
		if !cache.IsMiss(err) {
			p.Logger.Warn("voice cache failed", "err", err)
		}
	}

	if err := p.reach(ctx); err != nil {
		return err
	}
	body, err := p.get(ctx, p.server+"/voices")
	if err != nil {
		return fmt.Errorf("could not get the voices: %w", err)
	}
	voices := ParseVoices(string(body))
	if p.cache != nil {
		if err := p.cache.Put(p.server, voices); err != nil {
			p.Logger.Warn("could not cache voices", "err", err)
		}
	}
	p.SetVoices(voices)
	return nil
}

// ParseVoices reads the "name locale gender [type]" lines of /voices.
// Malformed lines are skipped.
func ParseVoices(body string) []tts.Voice {
	var voices []tts.Voice
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		voices = append(voices, tts.NewVoice(fields[0], "MaryTTS voice: "+fields[0],
			tts.StringToGender(fields[2]), "unknown", fields[1], tts.WithVendor("MaryTTS")))
	}
	return voices
}

// SpeakNative is not available for MaryTTS.
func (p *Provider) SpeakNative(context.Context, *tts.Wrapper) error {
	return p.Unsupported("speak native")
}

// Speak downloads the audio and plays it through the request sink.
func (p *Provider) Speak(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.synthesize(ctx, w)
	if err != nil {
		return err
	}
	return p.Play(ctx, w, file, false)
}

// Generate downloads the audio to the output file of w.
func (p *Provider) Generate(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.synthesize(ctx, w)
	if err != nil {
		return err
	}
	return p.Process(w, file)
}

// Close releases the voice cache.
func (p *Provider) Close() error {
	err := p.Base.Close()
	if p.cache != nil {
		err = errors.Join(err, p.cache.Close())
	}
	return err
}

func (p *Provider) synthesize(ctx context.Context, w *tts.Wrapper) (string, error) {
	if err := p.reach(ctx); err != nil {
		return "", err
	}
	file, err := p.AudioFile(w.UID())
	if err != nil {
		return "", err
	}

	p.Emitter().AudioGenerationStart(w)
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	data, err := p.get(ctx, p.server+"/process?"+p.Query(w).Encode())
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("could not generate the speech: %s: %w", w, err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	return file, nil
}

// Query builds the parameters of a /process request for w in the
// configured input type.
func (p *Provider) Query(w *tts.Wrapper) url.Values {
	culture := Culture(w)
	maryType := p.Config().Mary.Type

	q := url.Values{}
	q.Set("INPUT_TEXT", Payload(maryType, w, culture))
	if maryType == "" {
		maryType = tts.MaryRawXML
	}
	q.Set("INPUT_TYPE", string(maryType))
	q.Set("OUTPUT_TYPE", "AUDIO")
	q.Set("AUDIO", "WAVE_FILE")
	q.Set("LOCALE", strings.ReplaceAll(culture, "-", "_"))
	q.Set("VOICE", p.VoiceName(w))
	if math.Abs(w.Volume()-1) > 1e-6 {
		q.Set("effect_Volume_selected", "on")
		q.Set("effect_Volume_parameters", "amount:"+strconv.FormatFloat(w.Volume(), 'f', -1, 64))
	}
	return q
}

// Culture returns the culture of the request voice, en-US without one.
func Culture(w *tts.Wrapper) string {
	if v := w.Voice(); v != nil && v.Culture != "" {
		return v.Culture
	}
	return "en-US"
}

// Payload renders the text of w as the given MaryTTS input type.
func Payload(t tts.MaryType, w *tts.Wrapper, culture string) string {
	var sb strings.Builder
	switch t {
	case tts.MaryText:
		return w.Text()
	case tts.MaryEmotionML:
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8" ?>`)
		sb.WriteString(`<emotionml version="1.0" xmlns="http://www.w3.org/2009/10/emotionml"`)
		sb.WriteString(` category-set="http://www.w3.org/TR/emotion-voc/xml#big6">`)
		sb.WriteString(tts.ValidXML(w.Text()))
		sb.WriteString("</emotionml>")
	case tts.MarySSML:
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8" ?>`)
		sb.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="` + culture + `">`)
		sb.WriteString(Prosody(w))
		sb.WriteString("</speak>")
	default:
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8" ?>`)
		sb.WriteString(`<maryxml version="0.5" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"`)
		sb.WriteString(` xmlns="http://mary.dfki.de/2002/MaryXML" xml:lang="` + culture + `">`)
		sb.WriteString(Prosody(w))
		sb.WriteString("</maryxml>")
	}
	return sb.String()
}

// Prosody wraps the text of w in a prosody element when rate or pitch
// differ from 1. Rates above 1 are halved.
func Prosody(w *tts.Wrapper) string {
	r, pt := w.Rate()-1, w.Pitch()-1
	if math.Abs(r) < 1e-6 && math.Abs(pt) < 1e-6 {
		return tts.ValidXML(w.Text())
	}
	var sb strings.Builder
	sb.WriteString("<prosody")
	if math.Abs(r) >= 1e-6 {
		if r > 0 {
			r *= 0.5
		}
		sb.WriteString(` rate="` + percent(r) + `"`)
	}
	if math.Abs(pt) >= 1e-6 {
		sb.WriteString(` pitch="` + percent(pt) + `"`)
	}
	sb.WriteString(">" + w.Text() + "</prosody>")
	return tts.ValidXML(sb.String())
}

func percent(v float64) string {
	pct := int(math.Round(v * 100))
	if pct >= 0 {
		return fmt.Sprintf("+%d%%", pct)
	}
	return fmt.Sprintf("%d%%", pct)
}

// reach reports tts.ErrNoNetwork when the server cannot be reached.
func (p *Provider) reach(ctx context.Context) error {
	if !p.Config().Mary.CheckConnectivity {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.server+"/version", nil)
	if err != nil {
		return err
	}
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: MaryTTS server %s: %v", tts.ErrNoNetwork, p.server, err)
	}
	resp.Body.Close()
	return nil
}

func (p *Provider) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (p *Provider) authorize(req *http.Request) {
	cfg := p.Config().Mary
	if cfg.User != "" {
		req.SetBasicAuth(cfg.User, cfg.Password)
	}
}
