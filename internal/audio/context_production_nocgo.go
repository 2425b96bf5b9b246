//go:build nocgo

package audio

import (
	"errors"
	"io"

	"github.com/dgnsrekt/rtvoice/internal/platform"
)

var errNoCgo = errors.New("audio not available in nocgo build")

// ProductionContext is unavailable without cgo.
type ProductionContext struct{}

// NewProductionContext always fails in nocgo builds.
func NewProductionContext(info *platform.Info) (*ProductionContext, error) {
	return nil, errNoCgo
}

func (pc *ProductionContext) NewPlayer(r io.Reader) (Player, error) { return nil, errNoCgo }
func (pc *ProductionContext) Close() error                          { return nil }
func (pc *ProductionContext) IsReady() bool                         { return false }
func (pc *ProductionContext) SampleRate() int                       { return SampleRate }
func (pc *ProductionContext) ChannelCount() int                     { return Channels }
