package audio

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/rtvoice/internal/platform"
)

// NewContext creates a context of the given type. ContextAuto falls back to
// the mock context when the platform has no usable audio output.
func NewContext(t ContextType) (Context, error) {
	switch t {
	case ContextProduction:
		return NewProductionContext(platform.Detect())
	case ContextMock:
		return NewMockContext(), nil
	case ContextAuto:
		info := platform.Detect()
		log.Debug("Platform detection complete", "info", info.String())

		if info.ShouldUseMockAudio() {
			reason := "no audio devices"
			if info.IsCI {
				reason = "CI environment"
			} else if info.AudioSubsystem == platform.AudioNone {
				reason = "no audio subsystem"
			}
			log.Info("Using mock audio context", "reason", reason)
			return NewMockContext(), nil
		}

		pc, err := NewProductionContext(info)
		if err != nil {
			log.Warn("Failed to create production audio context, falling back to mock",
				"error", err, "platform", info.OS)
			return NewMockContext(), nil
		}
		return pc, nil
	}
	return nil, fmt.Errorf("unknown audio context type: %v", t)
}
