package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/deepnoodle-ai/methodc/bytecode"
	"github.com/deepnoodle-ai/methodc/compiler"
	"github.com/deepnoodle-ai/methodc/isa"
)

// jobFile is the yaml compilation job: compiler settings plus the list of
// methods to compile.
type jobFile struct {
	ISA           string `yaml:"isa"`
	Optimizations *bool  `yaml:"optimizations"`
	DebugSymbols  bool   `yaml:"debug_symbols"`
	Strict        bool   `yaml:"strict"`
	Visualizer    struct {
		Output string `yaml:"output"`
		Filter string `yaml:"filter"`
	} `yaml:"visualizer"`
	Methods []jobMethod `yaml:"methods"`
}

type jobMethod struct {
	Name      string   `yaml:"name"`
	Registers uint16   `yaml:"registers"`
	Ins       uint16   `yaml:"ins"`
	Insns     []uint16 `yaml:"insns"`
	Tries     []struct {
		Start   uint16 `yaml:"start"`
		End     uint16 `yaml:"end"`
		Handler uint16 `yaml:"handler"`
	} `yaml:"tries"`
}

func loadJob(path string) (*jobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job jobFile
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("invalid job file %s: %w", path, err)
	}
	if len(job.Methods) == 0 {
		return nil, fmt.Errorf("job file %s lists no methods", path)
	}
	return &job, nil
}

func (jm jobMethod) toMethod() *bytecode.Method {
	var tries []bytecode.TryRange
	for _, t := range jm.Tries {
		tries = append(tries, bytecode.TryRange{Start: t.Start, End: t.End, Handler: t.Handler})
	}
	return bytecode.NewMethod(bytecode.MethodParams{
		Name:          jm.Name,
		Insns:         jm.Insns,
		RegistersSize: jm.Registers,
		InsSize:       jm.Ins,
		Tries:         tries,
	})
}

func runCompile(path string, logger zerolog.Logger) error {
	job, err := loadJob(path)
	if err != nil {
		return err
	}

	set, err := isa.FromString(job.ISA)
	if err != nil {
		return err
	}

	cfg := &compiler.Config{
		ISA:                 set,
		Optimizations:       job.Optimizations == nil || *job.Optimizations,
		IncludeDebugSymbols: job.DebugSymbols,
		StrictMode:          job.Strict,
		VisualizerFilter:    job.Visualizer.Filter,
		Logger:              logger,
	}
	if job.Visualizer.Output != "" {
		f, err := os.Create(job.Visualizer.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		cfg.VisualizerOutput = f
	}

	c, err := compiler.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	for _, jm := range job.Methods {
		art := c.Compile(jm.toMethod())
		switch {
		case art == nil:
			fmt.Printf("%s  %s\n", yellow("skip"), jm.Name)
		case art.Optimized():
			fmt.Printf("%s  %s  %d bytes, frame %d\n", green("opt "), jm.Name, art.CodeSize(), art.FrameSize())
		default:
			fmt.Printf("%s  %s  %d bytes, frame %d\n", green("base"), jm.Name, art.CodeSize(), art.FrameSize())
		}
	}

	stats := c.Stats()
	fmt.Printf("\ntotal %d  optimized %d  baseline %d\n", stats.Total, stats.Optimized, stats.Unoptimized)
	if stats.Optimized+stats.Unoptimized == 0 {
		return fmt.Errorf("no methods compiled")
	}
	return nil
}
