// Package platform detects the host operating system, its audio subsystem
// and whether it ships a speech synthesizer the providers can drive.
package platform

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
)

// Platform represents an operating system a provider can target.
type Platform string

const (
	Linux   Platform = "linux"
	Darwin  Platform = "darwin"
	Windows Platform = "windows"
	Android Platform = "android"
	IOS     Platform = "ios"
	Unknown Platform = "unknown"
)

// AudioSubsystem represents the available audio subsystem.
type AudioSubsystem string

const (
	AudioALSA       AudioSubsystem = "alsa"
	AudioPulseAudio AudioSubsystem = "pulseaudio"
	AudioCoreAudio  AudioSubsystem = "coreaudio"
	AudioWASAPI     AudioSubsystem = "wasapi"
	AudioNone       AudioSubsystem = "none"
)

// Info contains information about the current platform.
type Info struct {
	OS             Platform
	AudioSubsystem AudioSubsystem
	HasAudioDevice bool
	IsCI           bool
	Details        map[string]string
}

// Detect detects the current platform and audio capabilities.
func Detect() *Info {
	info := &Info{
		OS:      FromGOOS(runtime.GOOS),
		IsCI:    IsCI(),
		Details: make(map[string]string),
	}

	switch info.OS {
	case Linux:
		info.AudioSubsystem = detectLinuxAudio()
		info.HasAudioDevice = checkLinuxAudioDevices()
	case Darwin:
		info.AudioSubsystem = AudioCoreAudio
		info.HasAudioDevice = true
	case Windows:
		info.AudioSubsystem = AudioWASAPI
		info.HasAudioDevice = checkWindowsAudioDevices()
	default:
		info.AudioSubsystem = AudioNone
	}

	info.Details["os"] = runtime.GOOS
	info.Details["arch"] = runtime.GOARCH
	info.Details["goversion"] = runtime.Version()

	log.Debug("Platform detected",
		"os", info.OS,
		"audio", info.AudioSubsystem,
		"has_device", info.HasAudioDevice,
		"is_ci", info.IsCI)

	return info
}

// FromGOOS maps a GOOS value to a Platform.
func FromGOOS(goos string) Platform {
	switch goos {
	case "linux":
		return Linux
	case "darwin":
		return Darwin
	case "windows":
		return Windows
	case "android":
		return Android
	case "ios":
		return IOS
	default:
		return Unknown
	}
}

// HasBuiltInTTS reports whether goos ships a speech engine a native
// provider can drive. Other platforms fall back to a remote server.
func HasBuiltInTTS(goos string) bool {
	return FromGOOS(goos) != Unknown
}

// IsDesktop reports whether goos can run the desktop process providers.
func IsDesktop(goos string) bool {
	switch FromGOOS(goos) {
	case Linux, Darwin, Windows:
		return true
	}
	return false
}

// IsCI detects if we're running in a CI environment.
func IsCI() bool {
	ciVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
		"DRONE",
		"TEAMCITY_VERSION",
	}

	for _, envVar := range ciVars {
		if val := os.Getenv(envVar); val != "" && val != "false" {
			log.Debug("CI environment detected", "variable", envVar, "value", val)
			return true
		}
	}

	if os.Getenv("RTVOICE_MOCK_AUDIO") == "true" {
		log.Debug("Mock audio requested via environment variable")
		return true
	}

	return false
}

func detectLinuxAudio() AudioSubsystem {
	if commandAvailable("pactl") {
		if output, err := exec.Command("pactl", "info").Output(); err == nil {
			if strings.Contains(string(output), "Server Name") {
				return AudioPulseAudio
			}
		}
	}

	if _, err := os.Stat("/proc/asound"); err == nil {
		return AudioALSA
	}
	if commandAvailable("aplay") {
		return AudioALSA
	}
	return AudioNone
}

func checkLinuxAudioDevices() bool {
	if entries, err := os.ReadDir("/dev/snd"); err == nil {
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), "pcm") {
				return true
			}
		}
	}

	if content, err := os.ReadFile("/proc/asound/cards"); err == nil {
		if len(content) > 0 && !strings.Contains(string(content), "no soundcards") {
			return true
		}
	}

	if commandAvailable("pactl") {
		if output, err := exec.Command("pactl", "list", "short", "sinks").Output(); err == nil && len(output) > 0 {
			return true
		}
	}

	log.Debug("No Linux audio devices found")
	return false
}

func checkWindowsAudioDevices() bool {
	if commandAvailable("sc") {
		if output, err := exec.Command("sc", "query", "AudioSrv").Output(); err == nil {
			return strings.Contains(string(output), "RUNNING")
		}
	}
	return true
}

func commandAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// ShouldUseMockAudio determines if mock audio should be used.
func (p *Info) ShouldUseMockAudio() bool {
	return p.IsCI || p.AudioSubsystem == AudioNone || !p.HasAudioDevice
}

// BufferSize returns the recommended oto buffer size in milliseconds.
func (p *Info) BufferSize() int {
	switch p.OS {
	case Darwin:
		return 100
	case Windows:
		return 80
	case Linux:
		if p.AudioSubsystem == AudioPulseAudio {
			return 60
		}
		return 50
	default:
		return 50
	}
}

// String returns a string representation of the platform info.
func (p *Info) String() string {
	return fmt.Sprintf("Platform{OS: %s, Audio: %s, HasDevice: %v, IsCI: %v}",
		p.OS, p.AudioSubsystem, p.HasAudioDevice, p.IsCI)
}
