// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command ccx drives the single-translation-unit compiler of spec.md
// section 6: lex, preprocess, parse, and generate x86-64 System V GAS
// assembly for one C source file.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorse-io/ccx/internal/ccx"
	tok "github.com/gorse-io/ccx/internal/token"
	"github.com/spf13/cobra"
	"golang.org/x/sys/cpu"
)

// searchPathProvider resolves #include targets against the search-path
// order named in spec.md section 6: quoted includes try -iquote first,
// then the including file's own directory, then -I; angle includes skip
// straight to -I, then -idirafter as a last resort for both forms.
type searchPathProvider struct {
	quoteDirs []string
	sysDirs   []string
	afterDirs []string
}

func (p *searchPathProvider) Resolve(name string, quoted bool, fromFile string) (path, contents string, ok bool) {
	try := func(dir string) (string, string, bool) {
		candidate := name
		if dir != "" {
			candidate = filepath.Join(dir, name)
		}
		b, err := os.ReadFile(candidate)
		if err != nil {
			return "", "", false
		}
		return candidate, string(b), true
	}

	var order []string
	if quoted {
		order = append(order, p.quoteDirs...)
		order = append(order, filepath.Dir(fromFile))
	}
	order = append(order, p.sysDirs...)
	order = append(order, p.afterDirs...)

	for _, dir := range order {
		if path, contents, ok := try(dir); ok {
			slog.Debug("include resolved", "name", name, "quoted", quoted, "path", path)
			return path, contents, true
		}
	}
	slog.Debug("include not found", "name", name, "quoted", quoted, "from", fromFile)
	return "", "", false
}

// hostFeatures detects the ISA-feature predefined macros a hosted x86-64
// compiler would set from its target triple (spec.md 4.1/section 6).
func hostFeatures() map[string]bool {
	return map[string]bool{
		"__SSE__":    true, // baseline for the x86-64 System V ABI
		"__SSE2__":   true,
		"__SSE3__":   cpu.X86.HasSSE3,
		"__SSSE3__":  cpu.X86.HasSSSE3,
		"__SSE4_1__": cpu.X86.HasSSE41,
		"__SSE4_2__": cpu.X86.HasSSE42,
		"__AVX__":    cpu.X86.HasAVX,
		"__AVX2__":   cpu.X86.HasAVX2,
	}
}

func renderTokens(head *tok.Token) string {
	var sb strings.Builder
	line := 0
	for t := head; t != nil && t.Kind != tok.EOF; t = t.Next {
		if t.Pos.Line != line {
			if line != 0 {
				sb.WriteByte('\n')
			}
			line = t.Pos.Line
		} else if t.HasSpace {
			sb.WriteByte(' ')
		}
		if t.Kind == tok.Str {
			fmt.Fprintf(&sb, "%q", string(t.StrVal))
			continue
		}
		sb.WriteString(t.Lexeme)
	}
	sb.WriteByte('\n')
	return sb.String()
}

var (
	includeDirs []string
	quoteDirs   []string
	afterDirs   []string
	outPath     string
	preprocess  bool
	assemble    bool
	pic         bool
	common      bool
	funcSecs    bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "ccx source.c",
	Short: "compile one C translation unit to x86-64 System V assembly",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringArrayVarP(&includeDirs, "I", "I", nil, "add a directory to the #include <...> and \"...\" search path")
	rootCmd.Flags().StringArrayVar(&quoteDirs, "iquote", nil, "add a directory to the #include \"...\" search path only")
	rootCmd.Flags().StringArrayVar(&afterDirs, "idirafter", nil, "add a directory to the end of the #include search path")
	rootCmd.Flags().StringVarP(&outPath, "o", "o", "", "output file (default: stdout)")
	rootCmd.Flags().BoolVarP(&preprocess, "E", "E", false, "stop after preprocessing and print the expanded token stream")
	rootCmd.Flags().BoolVarP(&assemble, "S", "S", false, "emit assembly (the only supported output; accepted for command-line compatibility)")
	rootCmd.Flags().BoolVar(&pic, "fpic", false, "generate position-independent code")
	rootCmd.Flags().BoolVar(&common, "fcommon", false, "place tentative global definitions in a common block")
	rootCmd.Flags().BoolVar(&funcSecs, "ffunction-sections", false, "place each function in its own section")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log include resolution and codegen phase timing to stderr")
}

func run(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	srcPath := args[0]
	b, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}

	files := &searchPathProvider{quoteDirs: quoteDirs, sysDirs: includeDirs, afterDirs: afterDirs}
	features := hostFeatures()

	var output string
	if preprocess {
		start := time.Now()
		toks, err := ccx.PreprocessFile(srcPath, string(b), files, features)
		slog.Debug("preprocess phase done", "elapsed", time.Since(start))
		if err != nil {
			return err
		}
		output = renderTokens(toks)
	} else {
		cfg := ccx.CodegenConfig{PIC: pic, Common: common, FunctionSections: funcSecs}
		start := time.Now()
		asm, err := ccx.CompileFile(srcPath, string(b), files, features, cfg)
		slog.Debug("lex+preprocess+parse+generate phase done", "elapsed", time.Since(start))
		if err != nil {
			return err
		}
		output = asm
	}

	if outPath == "" || outPath == "-" {
		_, err = fmt.Fprint(os.Stdout, output)
		return err
	}
	return os.WriteFile(outPath, []byte(output), 0o644)
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
