// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Prefix starts the name of every environment key the engine reads
const Prefix = "VKFRAME_"

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Window   WindowConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// StatsInterval is how often frame statistics are logged,
	// zero disables them
	StatsInterval time.Duration

	// MinimizedPollDelay is how long the loop sleeps between
	// event polls while the window is minimized
	MinimizedPollDelay time.Duration
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	SwapchainSize uint32

	// FrameTimeout bounds every fence wait and image acquire
	FrameTimeout time.Duration

	// DescriptorSets is the capacity of the descriptor pool
	DescriptorSets uint32

	// Effects names the compute shaders to load, in order.
	// Empty loads every shader the source can list.
	Effects    []string
	ShaderDir  string
	ShaderPack string

	// DrawFollowsWindow recreates the draw image on resize,
	// otherwise it keeps the size the window had at start
	DrawFollowsWindow bool

	// RenderScale shrinks the drawn area of the draw image, (0, 1]
	RenderScale float32

	Validation bool
}

// WindowConfiguration is used to configure the window
type WindowConfiguration struct {
	Title  string
	Width  uint32
	Height uint32
}

// DefaultConfiguration returns the configuration used for unset keys
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			StatsInterval:      time.Second,
			MinimizedPollDelay: 100 * time.Millisecond,
		},
		Renderer: RendererConfiguration{
			SwapchainSize:  3,
			FrameTimeout:   time.Second,
			DescriptorSets: 10,
			Effects:        []string{"gradient", "sky"},
			ShaderDir:      "shaders",
			RenderScale:    1,
		},
		Window: WindowConfiguration{
			Title:  "vkframe",
			Width:  1700,
			Height: 900,
		},
	}
}

// LoadConfiguration loads the given .env files into the environment,
// existing variables win, and reads every VKFRAME_ key over the defaults
func LoadConfiguration(files ...string) (Configuration, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Configuration{}, errors.Wrap(err, "godotenv.Load()")
		}
	}
	envy.Reload()

	var (
		cfg = DefaultConfiguration()
		r   = reader{}
	)
	cfg.Window.Title = r.str("TITLE", cfg.Window.Title)
	cfg.Window.Width = r.number("WIDTH", cfg.Window.Width)
	cfg.Window.Height = r.number("HEIGHT", cfg.Window.Height)

	cfg.Time.FramesPerSecond = int(r.number("FPS", uint32(cfg.Time.FramesPerSecond)))
	cfg.Time.StatsInterval = r.milliseconds("STATS_MS", cfg.Time.StatsInterval)
	cfg.Time.MinimizedPollDelay = r.milliseconds("MINIMIZED_POLL_MS", cfg.Time.MinimizedPollDelay)

	cfg.Renderer.SwapchainSize = r.number("SWAPCHAIN_SIZE", cfg.Renderer.SwapchainSize)
	cfg.Renderer.FrameTimeout = r.duration("FRAME_TIMEOUT", cfg.Renderer.FrameTimeout)
	cfg.Renderer.DescriptorSets = r.number("DESCRIPTOR_SETS", cfg.Renderer.DescriptorSets)
	cfg.Renderer.Effects = r.list("EFFECTS", cfg.Renderer.Effects)
	cfg.Renderer.ShaderDir = r.str("SHADER_DIR", cfg.Renderer.ShaderDir)
	cfg.Renderer.ShaderPack = r.str("SHADER_PACK", cfg.Renderer.ShaderPack)
	cfg.Renderer.DrawFollowsWindow = r.flag("DRAW_FOLLOWS_WINDOW", cfg.Renderer.DrawFollowsWindow)
	cfg.Renderer.RenderScale = r.fraction("RENDER_SCALE", cfg.Renderer.RenderScale)
	cfg.Renderer.Validation = r.flag("VALIDATION", cfg.Renderer.Validation)

	if r.err != nil {
		return Configuration{}, r.err
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that can not work
func (c Configuration) Validate() error {
	switch {
	case c.Window.Width == 0 || c.Window.Height == 0:
		return errors.Errorf("window size %dx%d is empty", c.Window.Width, c.Window.Height)
	case c.Renderer.FrameTimeout <= 0:
		return errors.Errorf("frame timeout %s must be positive", c.Renderer.FrameTimeout)
	case c.Renderer.RenderScale <= 0 || c.Renderer.RenderScale > 1:
		return errors.Errorf("render scale %g out of (0, 1]", c.Renderer.RenderScale)
	}
	return nil
}

// reader keeps the first parse error
type reader struct {
	err error
}

func (r *reader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(envy.Get(Prefix+key, ""))
	return v, v != ""
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = errors.Wrap(err, Prefix+key)
	}
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return def
}

func (r *reader) list(key string, def []string) []string {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (r *reader) number(key string, def uint32) uint32 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return uint32(n)
}

func (r *reader) fraction(key string, def float32) float32 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return float32(f)
}

func (r *reader) flag(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *reader) milliseconds(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}
