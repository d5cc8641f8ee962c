// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

//go:generate glslangValidator -V shaders/gradient.comp -o shaders/gradient.comp.spv
//go:generate glslangValidator -V shaders/sky.comp -o shaders/sky.comp.spv

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/gobuffalo/packr"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/device"
	"github.com/devblok/vkframe/shader"
)

func init() {
	runtime.LockOSThread()
}

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	envFile      = flag.String("env", "", "Load configuration from a .env file")
	verbose      = flag.Bool("v", false, "Log debug messages")
)

// bundled is compiled into the binary by packr
var bundled = packr.NewBox("./shaders")

func main() {
	os.Exit(start())
}

// start holds every deferred teardown, main exits with its result
func start() int {
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := core.LoadConfiguration(files...)
	if err != nil {
		log.Fatal(err)
	}
	if *debug {
		cfg.Renderer.Validation = true
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := trace.Start(f); err != nil {
			log.Fatal(err)
		}
		defer trace.Stop()
	}

	code := 0
	if err := run(cfg); err != nil {
		log.WithError(err).Error("vkframe stopped")
		code = 1
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
	}
	return code
}

// shaders searches the pack first, then the directory, then
// what was bundled at build time
func shaders(cfg core.RendererConfiguration) (shader.Chain, func(), error) {
	var (
		chain   shader.Chain
		closers []func()
	)
	if cfg.ShaderPack != "" {
		pack, err := shader.OpenPack(cfg.ShaderPack)
		if err != nil {
			return nil, nil, err
		}
		log.WithFields(log.Fields{
			"pack":    cfg.ShaderPack,
			"version": pack.Header().Version,
		}).Info("shader pack opened")
		chain = append(chain, pack)
		closers = append(closers, func() { pack.Close() })
	}
	if cfg.ShaderDir != "" {
		if _, err := os.Stat(cfg.ShaderDir); err == nil {
			chain = append(chain, shader.Dir(cfg.ShaderDir))
		}
	}
	chain = append(chain, shader.FromBox(bundled))

	return chain, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func run(cfg core.Configuration) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return err
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return err
	}
	defer sdl.VulkanUnloadLibrary()

	win, err := newWindow(cfg.Window)
	if err != nil {
		return err
	}
	defer win.Destroy()

	instance, err := device.NewInstance(device.DefaultApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), device.InstanceConfiguration{
		Validation: cfg.Renderer.Validation,
		Extensions: win.VulkanGetInstanceExtensions(),
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := win.VulkanCreateSurface(instance.Instance())
	if err != nil {
		return err
	}
	instance.SetSurface(surface)

	vulkan, err := device.New(instance, device.Configuration{
		SwapchainSize: cfg.Renderer.SwapchainSize,
	}, log.StandardLogger())
	if err != nil {
		return err
	}
	defer vulkan.Destroy()

	sources, closeSources, err := shaders(cfg.Renderer)
	if err != nil {
		return err
	}
	defer closeSources()

	// the swapchain follows the drawable, which differs from
	// the window size on high density displays
	cfg.Window.Width, cfg.Window.Height = win.Extent().Width, win.Extent().Height

	engine, err := core.New(vulkan, sources, cfg, log.StandardLogger())
	if err != nil {
		return err
	}
	defer engine.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		select {
		case <-interrupt:
			cancel()
		case <-ctx.Done():
		}
	}()

	return engine.Run(ctx, win)
}
