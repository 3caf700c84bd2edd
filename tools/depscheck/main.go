package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// rule forbids packages under From from importing anything under a prefix
// in Deny. The measurement core stays free of presentation and transport.
type rule struct {
	From string
	Deny []string
}

var rules = []rule{
	{From: "tvc-hud/watcher/internal/memport", Deny: presentation},
	{From: "tvc-hud/watcher/internal/resolve", Deny: presentation},
	{From: "tvc-hud/watcher/internal/snapshot", Deny: presentation},
	{From: "tvc-hud/watcher/internal/event", Deny: presentation},
	{From: "tvc-hud/watcher/internal/contact", Deny: append([]string{"tvc-hud/watcher/logging"}, presentation...)},
	{From: "tvc-hud/watcher/internal/combo", Deny: append([]string{"tvc-hud/watcher/logging"}, presentation...)},
	{From: "tvc-hud/watcher/internal/poll", Deny: presentation},
}

var presentation = []string{
	"tvc-hud/watcher/internal/net",
	"tvc-hud/watcher/internal/hud",
	"tvc-hud/watcher/internal/app",
	"github.com/gorilla/websocket",
	"github.com/gdamore/tcell",
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	pkgs, err := decodePackages(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
		os.Exit(1)
	}

	if found := violations(pkgs, rules); len(found) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range found {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func decodePackages(r io.Reader) ([]packageInfo, error) {
	decoder := json.NewDecoder(r)
	var pkgs []packageInfo
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				return pkgs, nil
			}
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
}

func violations(pkgs []packageInfo, rules []rule) []string {
	var out []string
	for _, pkg := range pkgs {
		for _, r := range rules {
			if !underPath(pkg.ImportPath, r.From) {
				continue
			}
			for _, imp := range pkg.Imports {
				for _, deny := range r.Deny {
					if underPath(imp, deny) {
						out = append(out, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
					}
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// underPath matches path itself or anything below it, so internal/net does
// not match internal/netx.
func underPath(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
