// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package shader finds compiled SPIR-V compute shaders and turns them
// into shader modules. Shaders can come from a directory, a packr box
// compiled into the binary or an spk archive.
package shader

import (
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/utility/spk"
)

// ComputeSuffix ends the file name of every compiled compute shader
const ComputeSuffix = ".comp.spv"

// Magic is the first word of every SPIR-V module
const Magic uint32 = 0x07230203

// headerSize is the SPIR-V header: magic, version, generator, bound, schema
const headerSize = 5 * 4

var (
	// ErrNotFound is returned when no source has the shader
	ErrNotFound = errors.New("shader not found")

	// ErrInvalid is returned when the bytes are not a SPIR-V module
	ErrInvalid = errors.New("not a SPIR-V module")
)

// Source loads compiled shaders by file name
type Source interface {
	Load(name string) ([]byte, error)
}

// Lister is implemented by sources that can enumerate their shaders
type Lister interface {
	Names() ([]string, error)
}

// FileName returns the compute shader file name of an effect
func FileName(effect string) string {
	if strings.HasSuffix(effect, ComputeSuffix) {
		return effect
	}
	return effect + ComputeSuffix
}

// EffectName strips the compute shader suffix
func EffectName(file string) string {
	return strings.TrimSuffix(filepath.Base(file), ComputeSuffix)
}

// Dir loads shaders from a directory on disk
type Dir string

// Load implements Source
func (d Dir) Load(name string) ([]byte, error) {
	path := filepath.Join(string(d), filepath.FromSlash(name))
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, name)
	} else if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

// Names walks the directory and returns every compiled compute
// shader, relative to the directory
func (d Dir) Names() ([]string, error) {
	var names []string
	if err := filepath.Walk(string(d), func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.IsDir() || !strings.HasSuffix(f.Name(), ComputeSuffix) {
			return nil
		}
		rel, err := filepath.Rel(string(d), path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

type boxSource struct {
	box packr.Box
}

// FromBox loads shaders from a packr box, which is either
// embedded in the binary or backed by its source directory
func FromBox(box packr.Box) Source {
	return boxSource{box: box}
}

func (b boxSource) Load(name string) ([]byte, error) {
	if !b.box.Has(name) {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return b.box.Find(name)
}

func (b boxSource) Names() ([]string, error) {
	var names []string
	for _, name := range b.box.List() {
		if strings.HasSuffix(name, ComputeSuffix) {
			names = append(names, filepath.ToSlash(name))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Pack is a memory mapped spk archive of shaders
type Pack struct {
	reader  *mmap.ReaderAt
	archive *spk.Archive
}

// OpenPack maps the archive at path into memory
func OpenPack(path string) (*Pack, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "mmap.Open()")
	}
	a, err := spk.Open(r)
	if err != nil {
		r.Close()
		return nil, errors.Wrapf(err, "open shader pack %s", path)
	}
	return &Pack{reader: r, archive: a}, nil
}

// Load implements Source
func (p *Pack) Load(name string) ([]byte, error) {
	data, err := p.archive.ReadAll(name)
	if errors.Cause(err) == spk.ErrNotFound {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return data, err
}

// Names implements Lister
func (p *Pack) Names() ([]string, error) {
	var names []string
	for _, name := range p.archive.Names() {
		if strings.HasSuffix(name, ComputeSuffix) {
			names = append(names, name)
		}
	}
	return names, nil
}

// Header returns the archive header
func (p *Pack) Header() spk.Header {
	return p.archive.Header()
}

// Close unmaps the archive
func (p *Pack) Close() error {
	return p.reader.Close()
}

// Chain tries every source in order and returns the first hit
type Chain []Source

// Load implements Source
func (c Chain) Load(name string) ([]byte, error) {
	for _, src := range c {
		data, err := src.Load(name)
		if errors.Cause(err) == ErrNotFound {
			continue
		}
		return data, err
	}
	return nil, errors.Wrap(ErrNotFound, name)
}

// Names returns the union of every listable source
func (c Chain) Names() ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, src := range c {
		lister, ok := src.(Lister)
		if !ok {
			continue
		}
		list, err := lister.Names()
		if err != nil {
			return nil, err
		}
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Words converts SPIR-V bytes into the words a shader module is made of.
// The module must be little endian, as produced by glslangValidator.
func Words(data []byte) ([]uint32, error) {
	if len(data) < headerSize || len(data)%4 != 0 {
		return nil, errors.Wrapf(ErrInvalid, "size %d", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != Magic {
		return nil, errors.Wrapf(ErrInvalid, "magic %#08x", words[0])
	}
	return words, nil
}

// LoadModule reads the file from the source and creates a shader module.
// The caller owns the module and destroys it once pipelines are built.
func LoadModule(dev gfx.PipelineDevice, src Source, file string) (gfx.ShaderModule, error) {
	data, err := src.Load(file)
	if err != nil {
		return nil, errors.Wrapf(err, "load shader %s", file)
	}
	code, err := Words(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load shader %s", file)
	}
	module, err := dev.CreateShaderModule(code)
	if err != nil {
		return nil, errors.Wrapf(err, "create shader module %s", file)
	}
	return module, nil
}
