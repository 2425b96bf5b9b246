// Package engines assembles the speech providers into a registry.
package engines

import (
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/android"
	"github.com/dgnsrekt/rtvoice/tts/engines/espeak"
	"github.com/dgnsrekt/rtvoice/tts/engines/gtts"
	"github.com/dgnsrekt/rtvoice/tts/engines/ios"
	"github.com/dgnsrekt/rtvoice/tts/engines/macos"
	"github.com/dgnsrekt/rtvoice/tts/engines/mary"
	"github.com/dgnsrekt/rtvoice/tts/engines/mock"
	"github.com/dgnsrekt/rtvoice/tts/engines/openai"
	"github.com/dgnsrekt/rtvoice/tts/engines/piper"
	"github.com/dgnsrekt/rtvoice/tts/engines/windows"
)

// ProviderOpenAIMary speaks with OpenAI and falls back to MaryTTS after
// DefaultMaxFailures failed requests in a row.
const ProviderOpenAIMary = "openai+mary"

// DefaultMaxFailures is the failure count that switches a Fallback.
const DefaultMaxFailures = 3

// DefaultRegistry returns a registry with every built-in provider.
func DefaultRegistry() *tts.Registry {
	r := tts.NewRegistry()
	r.MustRegister(tts.ProviderWindows, windows.Factory)
	r.MustRegister(tts.ProviderMacOS, macos.Factory)
	r.MustRegister(tts.ProviderESpeak, espeak.Factory)
	r.MustRegister(tts.ProviderMary, mary.Factory)
	r.MustRegister(tts.ProviderAndroid, android.Factory)
	r.MustRegister(tts.ProviderIOS, ios.Factory)
	r.MustRegister(tts.ProviderOpenAI, openai.Factory)
	r.MustRegister(tts.ProviderPiper, piper.Factory)
	r.MustRegister(tts.ProviderGTTS, gtts.Factory)
	r.MustRegister(tts.ProviderMock, mock.Factory)
	r.MustRegister(ProviderOpenAIMary, FallbackFactory(ProviderOpenAIMary, openai.Factory, mary.Factory, DefaultMaxFailures))
	return r
}
