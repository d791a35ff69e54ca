//go:build mage

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main contains Mage build targets for research-agent developer tooling.
package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the CLI expects.
var projectDirs = []string{
	".research-agent",
	".secrets",
	"reports",
}

// Init creates the local state and secrets directories.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized. Put provider keys in .secrets/ (e.g. .secrets/groq-api-key).")
	return nil
}

const (
	binDir  = "bin"
	binName = "research-agent"
	cmdPkg  = "./cmd/research-agent"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	if err := sh.RunV("go", "build", "-ldflags", "-X main.version="+version, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests. Container tests run only when INTEGRATION is set.
func Test() error {
	args := []string{"test", "-race"}
	if os.Getenv("INTEGRATION") == "" {
		args = append(args, "-short")
	}
	return sh.RunV("go", append(args, "./...")...)
}

// Research runs a non-interactive research session on $TOPIC and writes the
// report under reports/.
func Research() error {
	mg.Deps(Build, Init)
	topic := strings.TrimSpace(os.Getenv("TOPIC"))
	if topic == "" {
		return fmt.Errorf("set TOPIC to the research topic")
	}
	out := filepath.Join("reports", strings.ReplaceAll(strings.ToLower(topic), " ", "_")+".md")
	return sh.RunV(filepath.Join(binDir, binName), "research", "--no-interactive", "-o", out, topic)
}

// Stats prints non-blank Go lines per top-level directory, production and
// test separately, and the word count of the Markdown documents.
func Stats() error {
	type count struct{ prod, test int }
	perDir := map[string]*count{}
	var words int

	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") || d.Name() == binDir) {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".go":
			n, err := nonBlankLines(path)
			if err != nil {
				return err
			}
			top := strings.SplitN(filepath.ToSlash(path), "/", 2)[0]
			if perDir[top] == nil {
				perDir[top] = &count{}
			}
			if strings.HasSuffix(path, "_test.go") {
				perDir[top].test += n
			} else {
				perDir[top].prod += n
			}
		case ".md":
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			words += len(strings.Fields(string(data)))
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(perDir))
	for d := range perDir {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	var total count
	fmt.Printf("%-12s %8s %8s\n", "DIR", "PROD", "TEST")
	for _, d := range dirs {
		c := perDir[d]
		total.prod += c.prod
		total.test += c.test
		fmt.Printf("%-12s %8d %8d\n", d, c.prod, c.test)
	}
	fmt.Printf("%-12s %8d %8d\n", "total", total.prod, total.test)
	fmt.Printf("Words (Markdown): %d\n", words)
	return nil
}

func nonBlankLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}
